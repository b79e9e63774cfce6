package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

/*
Where a job gets its documents from. Site specific discovery lives behind
this interface; the engine only ever sees raw index text.
*/
type Source interface {
	PlayerSource(ctx context.Context, identifier string) (playerURL, title string, err error)
	VariantIndex(ctx context.Context, playerURL string) (string, error)
	FragmentIndex(ctx context.Context, playerURL, variantURL string) (string, error)
}

// Source for servers that hand out the variant and fragment indexes directly
type HTTPSource struct {
	Client  *http.Client
	Header  http.Header
	Title   string // Overrides any discovered title
	PageURL string // HTML page to take the title from
}

func NewHTTPSource(httpClient *http.Client) *HTTPSource {
	return &HTTPSource{
		Client: httpClient,
		Header: make(http.Header),
	}
}

func (hs *HTTPSource) httpClient() *http.Client {
	if hs.Client != nil {
		return hs.Client
	}

	if client != nil {
		return client
	}

	return http.DefaultClient
}

func (hs *HTTPSource) PlayerSource(ctx context.Context, identifier string) (string, string, error) {
	identifier = strings.TrimSpace(identifier)
	u, err := url.Parse(identifier)
	if err != nil {
		return "", "", fmt.Errorf("invalid url %q: %w", identifier, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("invalid url %q: scheme must be http or https", identifier)
	}

	title := strings.TrimSpace(hs.Title)
	if len(title) == 0 && len(hs.PageURL) > 0 {
		page, err := hs.fetch(ctx, hs.PageURL)
		if err != nil {
			LogWarn("Failed to retrieve the title page: %s", err)
		} else {
			title = GetTitleFromHtml(page)
			LogDebug("Found page title: %s", title)
		}
	}

	if len(title) == 0 {
		title = TitleFromURL(u)
	}

	return u.String(), title, nil
}

func (hs *HTTPSource) VariantIndex(ctx context.Context, playerURL string) (string, error) {
	data, err := hs.fetch(ctx, playerURL)
	if err != nil {
		return "", fmt.Errorf("error retrieving variant index: %w", err)
	}

	return string(data), nil
}

func (hs *HTTPSource) FragmentIndex(ctx context.Context, playerURL, variantURL string) (string, error) {
	target := ResolveReference(playerURL, variantURL)
	data, err := hs.fetch(ctx, target)
	if err != nil {
		return "", fmt.Errorf("error retrieving fragment index: %w", err)
	}

	return string(data), nil
}

func (hs *HTTPSource) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	for k, vals := range hs.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	LogTrace("GET %s", target)
	resp, err := hs.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: bad status: %s", target, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// Text of the first <title> element in the given HTML
func GetTitleFromHtml(data []byte) string {
	var title strings.Builder
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(title.String())
		case html.TextToken:
			if inTitle {
				title.Write(tokenizer.Text())
			}
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			inTitle = string(tn) == "title"
		case html.EndTagToken:
			if inTitle {
				return strings.TrimSpace(title.String())
			}
		}
	}
}

// Last path element without its extension, or the host when there is none
func TitleFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))

	if base == "" || base == "." || base == "/" {
		return u.Hostname()
	}

	return base
}
