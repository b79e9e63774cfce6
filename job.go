package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultExt   = "ts"
	StateFileExt = ".state"
)

type JobConfig struct {
	Home    string // Parent of every job directory
	Ext     string // Final file extension
	FragExt string // Fragment file extension
	Quality QualityPolicy
	Start   int         // First fragment index to download and merge
	Replace ConfirmFunc // Asked before overwriting an existing final file
	Cleanup ConfirmFunc // Asked before deleting fragments after a merge
}

func NewJobConfig() JobConfig {
	return JobConfig{
		Home:    ".",
		Ext:     DefaultExt,
		FragExt: DefaultFragExt,
		Quality: ParseQualityPolicy(DefaultQuality),
		Replace: PromptYesNo,
		Cleanup: PromptYesNo,
	}
}

/*
Saved download state, written once the quality and fragment list are known.
Lets a later run merge without the network, or resume with the same quality.
*/
type SavedState struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Quality   string   `json:"quality"`
	Start     int      `json:"start"`
	Count     int      `json:"count"`
	Fragments []string `json:"fragments"`
}

/*
One download. Everything here is settled by NewJob and Resolve and is only
read while fragments are being fetched.
*/
type Job struct {
	ID           uuid.UUID
	Config       JobConfig
	Title        string
	Dir          string
	OutputPath   string
	Quality      string
	FragmentURLs []string
}

func NewJob(cfg JobConfig, title string) (*Job, error) {
	if len(cfg.Ext) == 0 {
		cfg.Ext = DefaultExt
	}
	if len(cfg.FragExt) == 0 {
		cfg.FragExt = DefaultFragExt
	}
	if len(cfg.Home) == 0 {
		cfg.Home = "."
	}

	name := SanitizeFilename(strings.TrimSpace(title))
	name = TruncateString(name, MaxFileNameLength-len(cfg.Ext)-1)
	if strings.HasPrefix(name, "-") {
		name = "_" + name
	}
	if len(strings.TrimSpace(name)) == 0 || name == "." || name == ".." {
		return nil, fmt.Errorf("title %q is empty after sanitizing", title)
	}

	dir := filepath.Join(cfg.Home, name)

	return &Job{
		ID:         uuid.New(),
		Config:     cfg,
		Title:      name,
		Dir:        dir,
		OutputPath: filepath.Join(dir, fmt.Sprintf("%s.%s", name, cfg.Ext)),
	}, nil
}

func (j *Job) FragDir() string {
	return filepath.Join(j.Dir, j.Quality)
}

func (j *Job) StatePath(quality string) string {
	return filepath.Join(j.Dir, quality+StateFileExt)
}

func (j *Job) SaveState() error {
	state := SavedState{
		ID:        j.ID.String(),
		Title:     j.Title,
		Quality:   j.Quality,
		Start:     j.Config.Start,
		Count:     len(j.FragmentURLs),
		Fragments: j.FragmentURLs,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	err = os.MkdirAll(j.Dir, 0755)
	if err != nil {
		return err
	}

	return os.WriteFile(j.StatePath(j.Quality), data, 0644)
}

func (j *Job) LoadState(quality string) (*SavedState, error) {
	data, err := os.ReadFile(j.StatePath(quality))
	if err != nil {
		return nil, err
	}

	var state SavedState
	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("error reading state file %s: %w", j.StatePath(quality), err)
	}
	if len(state.Quality) == 0 {
		state.Quality = quality
	}

	return &state, nil
}

func (j *Job) applyState(state *SavedState) {
	if id, err := uuid.Parse(state.ID); err == nil {
		j.ID = id
	}

	j.Quality = state.Quality
	j.FragmentURLs = state.Fragments
	if j.Config.Start == 0 {
		j.Config.Start = state.Start
	}
}

/*
Qualities with a saved state file in the job directory, as a manifest whose
variant URLs are the state file paths.
*/
func (j *Job) SavedQualities() Manifest {
	var m Manifest
	files, _ := filepath.Glob(filepath.Join(j.Dir, "*"+StateFileExt))

	for _, f := range files {
		label := strings.TrimSuffix(filepath.Base(f), StateFileExt)
		height, err := ParseHeight(label)
		if err != nil {
			continue
		}

		m.Add(height, f)
	}

	return m
}

// A ladder candidate we already started downloading, if any
func (j *Job) pinnedVariant(ladder []Variant) (Variant, bool) {
	for _, v := range ladder {
		label := v.Label()
		if Exists(j.StatePath(label)) && Exists(filepath.Join(j.Dir, label)) {
			return v, true
		}
	}

	return Variant{}, false
}

/*
Pick the quality and build the fragment list.
With the best quality policy, the first wanted fragment of each candidate
(index Start) is fetched once before committing to it; a failure moves on to
the next lower quality.
*/
func (j *Job) Resolve(ctx context.Context, src Source, agent *TransferAgent, playerURL string) error {
	text, err := src.VariantIndex(ctx, playerURL)
	if err != nil {
		return err
	}

	m, err := ParseVariants(text)
	if err != nil {
		return err
	}
	LogInfo("Available qualities: %s", strings.Join(m.Labels(), ", "))

	ladder, err := QualityLadder(j.Config.Quality, m)
	if err != nil {
		return err
	}

	pinned := false
	if v, ok := j.pinnedVariant(ladder); ok {
		LogInfo("Found a previous download in %s, keeping that quality", v.Label())
		ladder = []Variant{v}
		pinned = true
	}

	var lastErr error
	for i, v := range ladder {
		last := i == len(ladder)-1
		label := v.Label()

		urls, err := j.fragmentList(ctx, src, playerURL, v)
		if err != nil {
			if last {
				return err
			}

			LogWarn("Quality %s: %s", label, err)
			lastErr = err
			continue
		}

		if err := CheckStartIndex(j.Config.Start, len(urls)); err != nil {
			if last {
				return err
			}

			LogWarn("Quality %s: %s", label, err)
			lastErr = err
			continue
		}

		start := j.Config.Start
		if !last && !pinned && !j.checkQuality(ctx, agent, label, start, urls[start]) {
			lastErr = fmt.Errorf("quality %s failed its first fragment", label)
			continue
		}

		j.Quality = label
		j.FragmentURLs = urls
		LogGeneral("Selected quality: %s (%d fragments)", label, len(urls))

		err = j.SaveState()
		if err != nil {
			LogWarn("Error when saving state: %s", err)
		}

		return nil
	}

	return lastErr
}

func (j *Job) fragmentList(ctx context.Context, src Source, playerURL string, v Variant) ([]string, error) {
	text, err := src.FragmentIndex(ctx, playerURL, v.URL)
	if err != nil {
		return nil, err
	}

	urls, err := ParseFragments(text)
	if err != nil {
		return nil, err
	}

	variantURL := ResolveReference(playerURL, v.URL)
	for i, u := range urls {
		urls[i] = ResolveReference(variantURL, u)
	}

	return urls, nil
}

// Single attempt at the first wanted fragment; the fetched file stays for the real download
func (j *Job) checkQuality(ctx context.Context, agent *TransferAgent, label string, index int, fragUrl string) bool {
	fragDir := filepath.Join(j.Dir, label)
	fpath := FragmentPath(fragDir, index, j.Config.FragExt)
	if Exists(fpath) {
		return true
	}

	err := os.MkdirAll(fragDir, 0755)
	if err != nil {
		LogWarn("Error creating fragment directory: %s", err)
		return false
	}

	once := *agent
	once.MaxTries = 1
	LogInfo("Checking quality %s: %s -> %s", label, fragUrl, fpath)

	outcome := once.Fetch(ctx, fragUrl, fpath)
	if outcome.Ok() {
		return true
	}

	LogWarn("Quality %s is unavailable (%s), trying a lower one", label, outcome.Err)
	os.Remove(fragDir)
	return false
}

/*
Download the resolved fragments, then merge and clean up.
An existing final file that should not be replaced stops the job before
anything is downloaded.
*/
func (j *Job) Run(ctx context.Context, sched *Scheduler) error {
	if len(j.Quality) == 0 {
		return errors.New("job has no resolved quality")
	}

	replace := j.Config.Replace
	if Exists(j.OutputPath) {
		if replace == nil || !replace(fmt.Sprintf("Replace the existing file %s?", j.OutputPath)) {
			return fmt.Errorf("%w: %s", ErrOutputExists, j.OutputPath)
		}

		replace = AlwaysConfirm
	}

	LogInfo("Starting job %s for %s", j.ID, j.Title)
	ok, err := DownloadFragmentsFrom(ctx, sched, j.FragmentURLs, j.FragDir(), j.Config.FragExt, j.Config.Start)
	if !ok {
		return err
	}

	LogGeneral("Download Finished")

	return j.finish(len(j.FragmentURLs), replace)
}

/*
Merge fragments from a saved state without touching the network.
Picks the saved quality the job's policy prefers.
*/
func (j *Job) MergeOnly() error {
	saved := j.SavedQualities()
	if len(saved.Variants) == 0 {
		return fmt.Errorf("no saved download state in %s", j.Dir)
	}

	v, err := SelectQuality(j.Config.Quality, saved)
	if err != nil {
		return err
	}

	state, err := j.LoadState(v.Label())
	if err != nil {
		return err
	}
	j.applyState(state)

	return j.finish(state.Count, j.Config.Replace)
}

func (j *Job) finish(count int, replace ConfirmFunc) error {
	merged, err := MergeFragmentsFrom(j.OutputPath, j.Dir, j.Quality, j.Config.Start, count, j.Config.FragExt, replace)
	if err != nil {
		return err
	}

	removed, err := RemoveFragments(merged, j.FragDir(), j.Config.Cleanup)
	if removed {
		TryDelete(j.StatePath(j.Quality))
	}

	return err
}
