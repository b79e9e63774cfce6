package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

const testVariantIndex = `
#STREAM RESOLUTION=1920x1080
1080/list.txt
#STREAM RESOLUTION=1280x720
720/list.txt
`

type testSite struct {
	*httptest.Server
	broken1080   bool
	fragmentHits atomic.Int32
}

/*
A site with a 1080p and a 720p variant of 3 fragments each. Fragment lists
use relative url= values, fragments are served as "<quality>-<index>".
*/
func newTestSite(t *testing.T, broken1080 bool) *testSite {
	site := &testSite{broken1080: broken1080}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")

		switch {
		case r.URL.Path == "/index.txt":
			fmt.Fprint(w, testVariantIndex)
		case len(parts) == 2 && parts[1] == "list.txt":
			for i := 0; i < 3; i++ {
				fmt.Fprintf(w, "frag?n=%d&url=seg%d.ts\n", i, i)
			}
		case len(parts) == 2 && strings.HasPrefix(parts[1], "seg"):
			site.fragmentHits.Add(1)
			if parts[0] == "1080" && site.broken1080 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			idx := strings.TrimSuffix(strings.TrimPrefix(parts[1], "seg"), ".ts")
			fmt.Fprintf(w, "%s-%s", parts[0], idx)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(site.Close)

	return site
}

func testJob(t *testing.T, home, quality string) *Job {
	cfg := NewJobConfig()
	cfg.Home = home
	cfg.Quality = ParseQualityPolicy(quality)
	cfg.Replace = NeverConfirm
	cfg.Cleanup = AlwaysConfirm

	job, err := NewJob(cfg, "My:Show")
	if err != nil {
		t.Fatal(err)
	}

	return job
}

func TestNewJobLayout(t *testing.T) {
	home := t.TempDir()
	job := testJob(t, home, "best")

	if job.Title != "My_Show" {
		t.Errorf("Expected title My_Show, got %s", job.Title)
	}
	if job.Dir != filepath.Join(home, "My_Show") {
		t.Errorf("Unexpected job directory %s", job.Dir)
	}
	if job.OutputPath != filepath.Join(home, "My_Show", "My_Show.ts") {
		t.Errorf("Unexpected output path %s", job.OutputPath)
	}

	_, err := NewJob(NewJobConfig(), "  ")
	if err == nil {
		t.Error("Expected an error for an empty title")
	}

	dashed, err := NewJob(NewJobConfig(), "-rf")
	if err != nil {
		t.Fatal(err)
	}
	if dashed.Title != "_-rf" {
		t.Errorf("Expected _-rf, got %s", dashed.Title)
	}
}

func TestJobBestFallsBackAndMerges(t *testing.T) {
	site := newTestSite(t, true)
	home := t.TempDir()
	job := testJob(t, home, "best")
	ctx := context.Background()

	agent := NewTransferAgent(site.Client(), 2)
	src := NewHTTPSource(site.Client())

	err := job.Resolve(ctx, src, agent, site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}
	if job.Quality != "720p" {
		t.Fatalf("Expected fallback to 720p, got %s", job.Quality)
	}
	if want := site.URL + "/720/seg0.ts"; job.FragmentURLs[0] != want {
		t.Errorf("Expected %s, got %s", want, job.FragmentURLs[0])
	}
	if Exists(filepath.Join(job.Dir, "1080p")) {
		t.Error("Empty 1080p directory left behind")
	}
	if !Exists(job.StatePath("720p")) {
		t.Error("State file was not written")
	}

	err = job.Run(ctx, NewScheduler(agent, 2))
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "720-0720-1720-2" {
		t.Errorf("Unexpected output %q", data)
	}
	if Exists(job.FragDir()) || Exists(job.StatePath("720p")) {
		t.Error("Fragments or state left after cleanup")
	}
}

func TestJobExplicitQuality(t *testing.T) {
	site := newTestSite(t, false)
	job := testJob(t, t.TempDir(), "1080")
	agent := NewTransferAgent(site.Client(), 1)

	err := job.Resolve(context.Background(), NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}
	if job.Quality != "1080p" || len(job.FragmentURLs) != 3 {
		t.Errorf("Expected 1080p with 3 fragments, got %s with %d", job.Quality, len(job.FragmentURLs))
	}
	if site.fragmentHits.Load() != 0 {
		t.Errorf("Explicit quality should not try a fragment early, got %d fragment requests", site.fragmentHits.Load())
	}

	missing := testJob(t, t.TempDir(), "360p")
	err = missing.Resolve(context.Background(), NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if !errors.Is(err, ErrUnknownQuality) {
		t.Errorf("Expected ErrUnknownQuality, got %v", err)
	}
}

func TestJobKeepsPreviousQuality(t *testing.T) {
	site := newTestSite(t, false)
	home := t.TempDir()
	job := testJob(t, home, "best")

	job.Quality = "720p"
	job.FragmentURLs = []string{"a", "b", "c"}
	err := job.SaveState()
	if err != nil {
		t.Fatal(err)
	}
	err = os.MkdirAll(job.FragDir(), 0755)
	if err != nil {
		t.Fatal(err)
	}

	again := testJob(t, home, "best")
	err = again.Resolve(context.Background(), NewHTTPSource(site.Client()), NewTransferAgent(site.Client(), 1), site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}
	if again.Quality != "720p" {
		t.Errorf("Expected the saved 720p to be kept, got %s", again.Quality)
	}
}

func TestJobRunOutputExists(t *testing.T) {
	site := newTestSite(t, false)
	job := testJob(t, t.TempDir(), "720p")
	agent := NewTransferAgent(site.Client(), 1)

	err := job.Resolve(context.Background(), NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}

	err = os.WriteFile(job.OutputPath, []byte("done"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	err = job.Run(context.Background(), NewScheduler(agent, 1))
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("Expected ErrOutputExists, got %v", err)
	}
	if site.fragmentHits.Load() != 0 {
		t.Errorf("Expected no fragment requests, got %d", site.fragmentHits.Load())
	}
}

func TestJobMergeOnly(t *testing.T) {
	site := newTestSite(t, false)
	home := t.TempDir()
	job := testJob(t, home, "720p")
	agent := NewTransferAgent(site.Client(), 1)
	ctx := context.Background()

	err := job.Resolve(ctx, NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}

	ok, err := DownloadFragments(ctx, NewScheduler(agent, 2), job.FragmentURLs, job.FragDir(), "ts")
	if !ok {
		t.Fatal(err)
	}
	site.Close()

	cfg := job.Config
	cfg.Quality = ParseQualityPolicy("best")
	cfg.Cleanup = NeverConfirm
	offline, err := NewJob(cfg, "My:Show")
	if err != nil {
		t.Fatal(err)
	}

	err = offline.MergeOnly()
	if err != nil {
		t.Fatal(err)
	}
	if offline.ID != job.ID {
		t.Errorf("Expected the saved job id %s, got %s", job.ID, offline.ID)
	}

	data, err := os.ReadFile(offline.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "720-0720-1720-2" {
		t.Errorf("Unexpected output %q", data)
	}
	if !Exists(offline.FragDir()) {
		t.Error("Fragments removed without confirmation")
	}

	empty := testJob(t, t.TempDir(), "best")
	if err := empty.MergeOnly(); err == nil {
		t.Error("Expected an error without saved state")
	}
}

func TestJobStartIndex(t *testing.T) {
	site := newTestSite(t, false)
	job := testJob(t, t.TempDir(), "720p")
	job.Config.Start = 1

	agent := NewTransferAgent(site.Client(), 1)
	ctx := context.Background()
	err := job.Resolve(ctx, NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if err != nil {
		t.Fatal(err)
	}

	state, err := job.LoadState("720p")
	if err != nil || state.Start != 1 {
		t.Fatalf("Expected start 1 in the saved state, got %+v (%v)", state, err)
	}

	err = job.Run(ctx, NewScheduler(agent, 2))
	if err != nil {
		t.Fatal(err)
	}
	if site.fragmentHits.Load() != 2 {
		t.Errorf("Expected 2 fragment requests, got %d", site.fragmentHits.Load())
	}

	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "720-1720-2" {
		t.Errorf("Unexpected output %q", data)
	}

	past := testJob(t, t.TempDir(), "720p")
	past.Config.Start = 3
	err = past.Resolve(ctx, NewHTTPSource(site.Client()), agent, site.URL+"/index.txt")
	if err == nil {
		t.Error("Expected an error for a start past the last fragment")
	}
}

func TestMergeOnlyKeepsSavedStart(t *testing.T) {
	home := t.TempDir()
	job := testJob(t, home, "best")
	job.Quality = "720p"
	job.Config.Start = 2
	job.FragmentURLs = []string{"a", "b", "c", "d"}
	if err := job.SaveState(); err != nil {
		t.Fatal(err)
	}
	writeFragments(t, job.FragDir(), 2, 3)

	again := testJob(t, home, "best")
	err := again.MergeOnly()
	if err != nil {
		t.Fatal(err)
	}
	if again.Config.Start != 2 {
		t.Errorf("Expected the saved start 2, got %d", again.Config.Start)
	}
	if Exists(FragmentPath(job.FragDir(), 3, job.Config.FragExt)) {
		t.Error("Expected merged fragments to be removed")
	}
}
