// Package scheduler implements fixed-size thread pool over a
// TaskGenerator: chunked dispatch of [0, num_tasks) across workers, with
// cooperative deadline-driven cancellation between chunks.
package scheduler

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// TaskGenerator is the shared, thread-aware unit of work the scheduler
// drives.
type TaskGenerator interface {
	// NumTasks returns the total number of tasks to distribute, [0, n).
	NumTasks() int64
	// Prepare is called once before any worker starts, with the chosen
	// thread count and chunk size.
	Prepare(numThreads int, chunkSize int64) error
	// InitThread is called once per worker, before its first RunTasks call.
	InitThread(threadID int) error
	// RunTasks processes task ids [begin, end) on the given worker thread.
	RunTasks(begin, end int64, threadID int) error
	// Finalize is called once, after every worker has returned, on the
	// scheduler's own goroutine (statistics merging
	// happens in finalize() single-threaded").
	Finalize() error
}

// Result is the outcome of a TaskScheduler.Run call.
type Result struct {
	Finished bool
	NextTask int64
	Duration time.Duration
}

// TaskScheduler runs a TaskGenerator's tasks across NumThreads workers in
// chunks of ChunkSize.
type TaskScheduler struct {
	NumThreads int
	ChunkSize  int64
}

// NewTaskScheduler builds a scheduler with the given worker count and chunk
// size. Run treats numThreads <= 0 as a single worker.
func NewTaskScheduler(numThreads int, chunkSize int64) *TaskScheduler {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &TaskScheduler{NumThreads: numThreads, ChunkSize: chunkSize}
}

// Run dispatches gen's tasks across the scheduler's worker pool, respecting
// deadline (zero value means no deadline). It partitions [0, num_tasks) into
// contiguous ChunkSize chunks pulled by idle workers, calling InitThread once
// per worker and Finalize once after every worker has returned.
func (s *TaskScheduler) Run(gen TaskGenerator, deadline time.Time) (Result, error) {
	start := time.Now()
	numTasks := gen.NumTasks()

	numThreads := s.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}
	if err := gen.Prepare(numThreads, s.ChunkSize); err != nil {
		return Result{}, err
	}

	var cursor atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(numThreads)

	for t := 0; t < numThreads; t++ {
		threadID := t
		eg.Go(func() error {
			if err := gen.InitThread(threadID); err != nil {
				return err
			}
			for {
				if !deadline.IsZero() && time.Now().After(deadline) {
					return nil
				}
				begin := cursor.Add(s.ChunkSize) - s.ChunkSize
				if begin >= numTasks {
					return nil
				}
				end := begin + s.ChunkSize
				if end > numTasks {
					end = numTasks
				}
				if err := gen.RunTasks(begin, end, threadID); err != nil {
					return err
				}
			}
		})
	}

	runErr := eg.Wait()
	finalizeErr := gen.Finalize()
	err := firstNonNil(runErr, finalizeErr)

	next := cursor.Load()
	if next > numTasks {
		next = numTasks
	}
	finished := err == nil && next >= numTasks
	return Result{Finished: finished, NextTask: next, Duration: time.Since(start)}, err
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
