package worker_pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dataops/ingestd/gologger"
)

var logger = gologger.NewLogger()

type (
	// TaskFunc is the target function run once per argument set.
	TaskFunc func(ctx context.Context, args []any) (any, error)

	// Pool runs one function over many argument sets with a fixed number of
	// concurrent workers. Each task retries immediately on error up to
	// MaxRetries total attempts; a task that exhausts its attempts is
	// recorded as failed rather than aborting the run.
	Pool struct {
		// Workers is the hard cap on concurrently running tasks.
		Workers int
		// MaxRetries is the total number of attempts per task.
		MaxRetries int
		// FailOnError returns an error after the run if any task failed.
		FailOnError bool
		// CollectOutput returns per-task results in submission order, nil
		// for failed tasks.
		CollectOutput bool
		// LogEvery logs progress every N completed tasks. 0 disables.
		LogEvery int
	}

	taskResult struct {
		ok     bool
		result any
	}
)

func New(workers, maxRetries int) *Pool {
	return &Pool{
		Workers:    workers,
		MaxRetries: maxRetries,
	}
}

// Run executes fn once per argument set and blocks until every task has
// resolved. The returned slice is nil unless CollectOutput is set.
func (p *Pool) Run(ctx context.Context, fn TaskFunc, argSets [][]any) ([]any, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	retries := p.MaxRetries
	if retries < 1 {
		retries = 1
	}

	results := make([]taskResult, len(argSets))
	tasks := make(chan int)
	var completed int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = p.runWithRetries(ctx, fn, argSets[i], retries)
				done := atomic.AddInt64(&completed, 1)
				if p.LogEvery > 0 && done%int64(p.LogEvery) == 0 {
					logger.Info().Int64("completed", done).Int("total", len(argSets)).Msg("task progress")
				}
			}
		}()
	}

	for i := range argSets {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.ok {
			failed++
		}
	}
	logger.Info().Int("succeeded", len(argSets)-failed).Int("failed", failed).Msg("all tasks finished")

	var out []any
	if p.CollectOutput {
		out = make([]any, len(results))
		for i, r := range results {
			out[i] = r.result
		}
	}

	if p.FailOnError && failed > 0 {
		return out, fmt.Errorf("%d tasks failed after retries", failed)
	}
	return out, nil
}

// runWithRetries retries immediately with no backoff. Retrying on error
// only; an exhausted task is recorded, not raised.
func (p *Pool) runWithRetries(ctx context.Context, fn TaskFunc, args []any, retries int) taskResult {
	for attempt := 1; attempt <= retries; attempt++ {
		result, err := fn(ctx, args)
		if err == nil {
			return taskResult{ok: true, result: result}
		}
		logger.Warn().Err(err).Int("attempt", attempt).Int("maxRetries", retries).Msg("task attempt failed")
	}
	return taskResult{}
}
