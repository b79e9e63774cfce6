package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Asks a yes/no question, true means go ahead
type ConfirmFunc func(prompt string) bool

func AlwaysConfirm(string) bool { return true }

func NeverConfirm(string) bool { return false }

// Confirm function for an Action flag value
func ConfirmForAction(action int) ConfirmFunc {
	switch action {
	case ActionDo:
		return AlwaysConfirm
	case ActionDoNot:
		return NeverConfirm
	}

	return PromptYesNo
}

/*
Concatenate <jobDir>/<quality>/0..count-1 into outPath, in index order.
Stops at the first missing fragment with a *SequenceError; the returned
paths are the fragments written so far. A count of zero or less merges the
contiguous run starting at 0.
If outPath exists, replace decides whether it is overwritten.
*/
func MergeFragments(outPath, jobDir, quality string, count int, ext string, replace ConfirmFunc) ([]string, error) {
	return MergeFragmentsFrom(outPath, jobDir, quality, 0, count, ext, replace)
}

// Same as MergeFragments for the run start..count-1
func MergeFragmentsFrom(outPath, jobDir, quality string, start, count int, ext string, replace ConfirmFunc) ([]string, error) {
	fragDir := filepath.Join(jobDir, quality)
	merged := make([]string, 0, max(count-start, 0))

	if err := CheckStartIndex(start, count); err != nil {
		return merged, err
	}

	if Exists(outPath) {
		if replace == nil || !replace(fmt.Sprintf("Replace the existing file %s?", outPath)) {
			return merged, fmt.Errorf("%w: %s", ErrOutputExists, outPath)
		}

		LogGeneral("Replacing existing file %s", outPath)
	} else {
		LogGeneral("Merging video fragments into %s", outPath)
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return merged, fmt.Errorf("error opening %s for writing: %w", outPath, err)
	}

	var total int64
	var mergeErr error

	for i := start; count <= 0 || i < count; i++ {
		fpath := FragmentPath(fragDir, i, ext)
		if !Exists(fpath) {
			if count <= 0 && i > start {
				break
			}

			mergeErr = &SequenceError{Missing: i, Expected: count, Path: fpath}
			break
		}

		LogInfo("Merging file %s", fpath)
		n, err := appendFile(f, fpath)
		total += n
		if err != nil {
			mergeErr = fmt.Errorf("error merging fragment %d: %w", i, err)
			break
		}

		merged = append(merged, fpath)
	}

	err = f.Close()
	if mergeErr == nil && err != nil {
		mergeErr = fmt.Errorf("error closing %s: %w", outPath, err)
	}

	if mergeErr != nil {
		return merged, mergeErr
	}

	LogGeneral("Merged %d fragments (%s) into %s", len(merged), humanize.Bytes(uint64(total)), outPath)
	return merged, nil
}

func appendFile(dst io.Writer, fpath string) (int64, error) {
	src, err := os.Open(fpath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	return io.Copy(dst, src)
}

/*
Delete merged fragment files and their directory once confirm agrees.
Returns whether anything was removed.
*/
func RemoveFragments(fragments []string, dir string, confirm ConfirmFunc) (bool, error) {
	if confirm == nil || !confirm("Remove all the fragment files?") {
		return false, nil
	}

	LogGeneral("Removing fragment files...")
	for _, f := range fragments {
		err := os.Remove(f)
		if err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("error deleting fragment %s: %w", f, err)
		}
	}

	err := os.Remove(dir)
	if err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("error deleting fragment directory %s: %w", dir, err)
	}

	return true, nil
}
