package main

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownQuality     = errors.New("unknown quality")
	ErrMalformedManifest  = errors.New("malformed manifest")
	ErrEmptyFragmentList  = errors.New("empty fragment list")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrIncompleteSequence = errors.New("incomplete fragment sequence")
	ErrOutputExists       = errors.New("output file already exists")
)

/*
Terminal failure of a single fragment transfer.
Matches ErrRetriesExhausted and the last underlying error with errors.Is.
*/
type FragmentError struct {
	Index    int
	URL      string
	Attempts int
	Err      error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("fragment %d: %s after %d attempt(s): %v", e.Index, ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *FragmentError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// Gap found while merging
type SequenceError struct {
	Missing  int
	Expected int
	Path     string
}

func (e *SequenceError) Error() string {
	if e.Expected > 0 {
		return fmt.Sprintf("%s: fragment %d of %d missing (%s)", ErrIncompleteSequence, e.Missing, e.Expected, e.Path)
	}

	return fmt.Sprintf("%s: fragment %d missing (%s)", ErrIncompleteSequence, e.Missing, e.Path)
}

func (e *SequenceError) Unwrap() error {
	return ErrIncompleteSequence
}
