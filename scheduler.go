package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const (
	DefaultWorkers = 10
	DefaultFragExt = "ts"
)

type FragmentTask struct {
	Index int
	URL   string
	Path  string
}

// Fragment file path for the given index: <dir>/<index>.<ext>
func FragmentPath(dir string, index int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%d.%s", index, ext))
}

/*
Tasks for every fragment that is not already on disk, in index order.
Fragment identity is purely positional, so an existing file is a finished
fragment.
*/
func PendingFragments(urls []string, dir, ext string) []FragmentTask {
	return PendingFragmentsFrom(urls, dir, ext, 0)
}

// Same as PendingFragments, ignoring every fragment before start
func PendingFragmentsFrom(urls []string, dir, ext string, start int) []FragmentTask {
	start = max(start, 0)
	tasks := make([]FragmentTask, 0, max(len(urls)-start, 0))

	for i := start; i < len(urls); i++ {
		u := urls[i]
		fpath := FragmentPath(dir, i, ext)
		if Exists(fpath) {
			LogInfo("File %s already exists", fpath)
			continue
		}

		tasks = append(tasks, FragmentTask{Index: i, URL: u, Path: fpath})
	}

	return tasks
}

/*
Runs fragment tasks over a bounded pool of workers.
A failed fragment never stops the others.
*/
type Scheduler struct {
	Agent    *TransferAgent
	Workers  int
	OnStart  func(pending int) // Called once per Run before any transfer starts
	OnResult func(TransferOutcome)
}

func NewScheduler(agent *TransferAgent, workers int) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}

	return &Scheduler{
		Agent:   agent,
		Workers: workers,
	}
}

/*
Transfer every task and wait for all of them.
Outcomes are returned in task order. The bool is true only if every
transfer succeeded.
*/
func (s *Scheduler) Run(ctx context.Context, tasks []FragmentTask) ([]TransferOutcome, bool) {
	outcomes := make([]TransferOutcome, len(tasks))
	if s.OnStart != nil {
		s.OnStart(len(tasks))
	}
	if len(tasks) == 0 {
		return outcomes, true
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var failed atomic.Bool
	var wg sync.WaitGroup
	slots := make(chan int, len(tasks))

	for i := range tasks {
		slots <- i
	}
	close(slots)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for slot := range slots {
				task := tasks[slot]
				LogInfo("Fetching fragment %d: %s -> %s", task.Index, task.URL, task.Path)

				outcome := s.Agent.Fetch(ctx, task.URL, task.Path)
				outcome.Index = task.Index
				outcomes[slot] = outcome

				if !outcome.Ok() {
					failed.Store(true)
					LogWarn("Fragment %d failed after %d attempt(s): %s", task.Index, outcome.Attempts, outcome.Err)
				}

				if s.OnResult != nil {
					s.OnResult(outcome)
				}
			}
		}()
	}

	wg.Wait()

	return outcomes, !failed.Load()
}

/*
Download every missing fragment of urls into fragDir.
Returns true when all fragments are on disk afterwards. The error joins one
*FragmentError per failed fragment.
*/
func DownloadFragments(ctx context.Context, s *Scheduler, urls []string, fragDir, ext string) (bool, error) {
	return DownloadFragmentsFrom(ctx, s, urls, fragDir, ext, 0)
}

// Same as DownloadFragments, starting at fragment index start
func DownloadFragmentsFrom(ctx context.Context, s *Scheduler, urls []string, fragDir, ext string, start int) (bool, error) {
	if len(urls) == 0 {
		return false, ErrEmptyFragmentList
	}
	if err := CheckStartIndex(start, len(urls)); err != nil {
		return false, err
	}

	err := os.MkdirAll(fragDir, 0755)
	if err != nil {
		return false, fmt.Errorf("error creating fragment directory: %w", err)
	}

	tasks := PendingFragmentsFrom(urls, fragDir, ext, start)
	LogInfo("%d of %d fragments left to download", len(tasks), len(urls)-start)

	outcomes, ok := s.Run(ctx, tasks)
	if ok {
		return true, nil
	}

	var errs []error
	for _, o := range outcomes {
		if o.Ok() {
			continue
		}

		errs = append(errs, &FragmentError{
			Index:    o.Index,
			URL:      o.URL,
			Attempts: o.Attempts,
			Err:      o.Err,
		})
	}

	return false, errors.Join(errs...)
}

func CheckStartIndex(start, count int) error {
	if start < 0 {
		return fmt.Errorf("start index %d is negative", start)
	}
	if count > 0 && start >= count {
		return fmt.Errorf("start index %d is past the last fragment (%d fragments)", start, count)
	}

	return nil
}
