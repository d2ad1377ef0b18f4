package docql

import (
	"context"

	"github.com/autom8ter/machine/v4"
	"github.com/samber/lo"
)

const (
	// DefaultBatchSize is the number of documents per bulk batch
	DefaultBatchSize = 50
	// DefaultConcurrency is the number of batches in flight at once
	DefaultConcurrency = 5
	// DefaultMaxAttempts bounds retries of a single remote operation
	DefaultMaxAttempts = 3
)

// Chunk splits items into contiguous slices of at most size elements; the
// final slice may be smaller. A non-positive size falls back to
// DefaultBatchSize.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	return lo.Chunk(items, size)
}

// RunBatches runs batches through worker under a concurrency cap: at most
// concurrency batches are in flight at once, free to complete out of order.
// halt is checked when a batch's slot opens, so a true result stops batches
// still waiting on a slot while in-flight ones run to completion. Errors
// returned by workers surface from the final wait; sibling batches are not
// interrupted.
func RunBatches[T any](ctx context.Context, batches [][]T, concurrency int, halt func() bool, worker func(ctx context.Context, index int, batch []T) error) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	m := machine.New(machine.WithThrottledRoutines(concurrency))
	for i, batch := range batches {
		i, batch := i, batch
		m.Go(ctx, func(ctx context.Context) error {
			if halt != nil && halt() {
				return nil
			}
			return worker(ctx, i, batch)
		})
	}
	return m.Wait()
}
