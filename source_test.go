package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGetTitleFromHtml(t *testing.T) {
	tests := []struct {
		page, want string
	}{
		{`<html><head><title> Episode 12 &amp; More </title></head></html>`, "Episode 12 & More"},
		{`<html><head><script>var title = "no";</script><title>Real</title></head><body><title>Later</title></body></html>`, "Real"},
		{`<html><body>nothing</body></html>`, ""},
	}

	for _, tt := range tests {
		if got := GetTitleFromHtml([]byte(tt.page)); got != tt.want {
			t.Errorf("GetTitleFromHtml(%q) = %q, expected %q", tt.page, got, tt.want)
		}
	}
}

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"https://example.com/show/episode-3.m3u8", "episode-3"},
		{"https://example.com/show/", "show"},
		{"https://example.com", "example.com"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := TitleFromURL(u); got != tt.want {
			t.Errorf("TitleFromURL(%s) = %q, expected %q", tt.raw, got, tt.want)
		}
	}
}

func TestHTTPSourcePlayerSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>Page Title</title></head></html>"))
	}))
	defer srv.Close()

	ctx := context.Background()
	src := NewHTTPSource(srv.Client())

	_, title, err := src.PlayerSource(ctx, "https://example.com/v/index.m3u8")
	if err != nil || title != "index" {
		t.Errorf("Expected title from URL, got %q (%v)", title, err)
	}

	src.PageURL = srv.URL + "/watch"
	_, title, err = src.PlayerSource(ctx, "https://example.com/v/index.m3u8")
	if err != nil || title != "Page Title" {
		t.Errorf("Expected title from page, got %q (%v)", title, err)
	}

	src.Title = "Given"
	_, title, err = src.PlayerSource(ctx, "https://example.com/v/index.m3u8")
	if err != nil || title != "Given" {
		t.Errorf("Expected the given title, got %q (%v)", title, err)
	}

	_, _, err = src.PlayerSource(ctx, "ftp://example.com/index")
	if err == nil {
		t.Error("Expected an error for a non-http URL")
	}
}

func TestHTTPSourceIndexes(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		switch r.URL.Path {
		case "/show/index.txt":
			w.Write([]byte("RESOLUTION=1280x720\n720/list.txt\n"))
		case "/show/720/list.txt":
			w.Write([]byte("x?url=seg0.ts\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	src := NewHTTPSource(srv.Client())
	src.Header.Set("Referer", "https://example.com/")
	player := srv.URL + "/show/index.txt"

	text, err := src.VariantIndex(ctx, player)
	if err != nil || !strings.Contains(text, "RESOLUTION=1280x720") {
		t.Fatalf("Unexpected variant index %q (%v)", text, err)
	}
	if gotReferer != "https://example.com/" {
		t.Errorf("Referer not sent, got %q", gotReferer)
	}

	text, err = src.FragmentIndex(ctx, player, "720/list.txt")
	if err != nil || !strings.Contains(text, "url=seg0.ts") {
		t.Errorf("Unexpected fragment index %q (%v)", text, err)
	}

	_, err = src.FragmentIndex(ctx, player, "1080/list.txt")
	if err == nil {
		t.Error("Expected an error for a 404")
	}
}
