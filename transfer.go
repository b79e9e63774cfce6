package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

const DefaultFragMaxTries = 3

/*
Result of a single fragment transfer.
Err is nil on success and holds the last attempt's error otherwise.
*/
type TransferOutcome struct {
	Index    int
	URL      string
	Path     string
	Attempts int
	Bytes    int64
	Err      error
}

func (to TransferOutcome) Ok() bool {
	return to.Err == nil
}

/*
Fetches one remote resource to a local path, retrying on failure.
Safe for concurrent use as long as each call writes a different path.
*/
type TransferAgent struct {
	Client        *http.Client
	MaxTries      int
	RetryInterval time.Duration
	Header        http.Header
	Limiter       *rate.Limiter
}

func NewTransferAgent(httpClient *http.Client, maxTries int) *TransferAgent {
	if maxTries < 1 {
		maxTries = DefaultFragMaxTries
	}

	return &TransferAgent{
		Client:   httpClient,
		MaxTries: maxTries,
		Header:   make(http.Header),
	}
}

func (ta *TransferAgent) httpClient() *http.Client {
	if ta.Client != nil {
		return ta.Client
	}

	if client != nil {
		return client
	}

	return http.DefaultClient
}

/*
Download fragUrl to dest. The body goes to a temporary file in the same
directory which is only renamed to dest once fully written, so dest either
does not exist or is complete.
*/
func (ta *TransferAgent) Fetch(ctx context.Context, fragUrl, dest string) TransferOutcome {
	outcome := TransferOutcome{
		URL:  fragUrl,
		Path: dest,
	}
	maxTries := ta.MaxTries
	if maxTries < 1 {
		maxTries = 1
	}

	for outcome.Attempts < maxTries {
		if err := ctx.Err(); err != nil {
			if outcome.Err == nil {
				outcome.Err = err
			}
			break
		}

		if outcome.Attempts > 0 && ta.RetryInterval > 0 {
			select {
			case <-time.After(ta.RetryInterval):
			case <-ctx.Done():
				continue
			}
		}

		outcome.Attempts += 1
		n, err := ta.tryFetch(ctx, fragUrl, dest)
		if err == nil {
			outcome.Bytes = n
			outcome.Err = nil
			return outcome
		}

		outcome.Err = err
		LogDebug("Fetch %s: attempt %d/%d failed: %s", fragUrl, outcome.Attempts, maxTries, err)
	}

	return outcome
}

func (ta *TransferAgent) tryFetch(ctx context.Context, fragUrl, dest string) (int64, error) {
	if ta.Limiter != nil {
		if err := ta.Limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fragUrl, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}

	for k, vals := range ta.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := ta.httpClient().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	return writeAtomic(dest, resp.Body)
}

// Write r to a temporary file next to dest and rename it into place
func writeAtomic(dest string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = errors.New("empty response body")
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	err = os.Rename(tmpName, dest)
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	return n, nil
}
