// Package batch executes independent per-item operations against a
// bounded worker pool. One item's failure never cancels its siblings;
// every submitted item yields exactly one outcome.
package batch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Worker pool bounds. Values outside the range are clamped.
const (
	DefaultWorkers = 4
	maxWorkers     = 64
)

// Result pairs one submitted item with its outcome. Err is nil on success.
type Result[T any] struct {
	Item T
	Err  error
}

// Summary aggregates a finished batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Runner fans items out to at most workers concurrent invocations of a
// worker function and collects per-item outcomes.
type Runner[T any] struct {
	workers int
	logger  *slog.Logger

	// describe renders an item for failure logs. Optional.
	describe func(T) string
}

// New creates a runner with the given concurrency bound.
func New[T any](workers int, logger *slog.Logger) *Runner[T] {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	return &Runner[T]{workers: workers, logger: logger}
}

// WithDescriber sets how items are named in failure logs and returns the
// runner for chaining.
func (r *Runner[T]) WithDescriber(describe func(T) string) *Runner[T] {
	r.describe = describe
	return r
}

// Run executes worker once per item through the bounded pool and blocks
// until every item has completed. There is no fail-fast: worker errors are
// captured in the result slice, not propagated through the group, so a
// failing item never cancels in-flight siblings. Results are positioned by
// submission order even though completion order is concurrent.
func (r *Runner[T]) Run(ctx context.Context, items []T, worker func(context.Context, T) error) []Result[T] {
	results := make([]Result[T], len(items))

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i, item := range items {
		g.Go(func() error {
			err := worker(ctx, item)
			results[i] = Result[T]{Item: item, Err: err}

			if err != nil {
				r.logger.Warn("batch item failed",
					"item", r.describeItem(item),
					"error", err,
				)
			}

			return nil
		})
	}

	// Workers always return nil; Wait is purely the join barrier.
	_ = g.Wait()

	return results
}

func (r *Runner[T]) describeItem(item T) string {
	if r.describe == nil {
		return ""
	}
	return r.describe(item)
}

// Summarize counts successes and failures across a finished batch.
func Summarize[T any](results []Result[T]) Summary {
	s := Summary{Total: len(results)}
	for _, res := range results {
		if res.Err == nil {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}

	return s
}

// Failures returns only the failed results, preserving their order.
func Failures[T any](results []Result[T]) []Result[T] {
	var failed []Result[T]
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}

	return failed
}
