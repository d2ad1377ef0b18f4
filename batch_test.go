package docql

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	t.Run("even split", func(t *testing.T) {
		batches := Chunk([]int{1, 2, 3, 4}, 2)
		assert.Equal(t, [][]int{{1, 2}, {3, 4}}, batches)
	})
	t.Run("final slice may be smaller", func(t *testing.T) {
		batches := Chunk([]int{1, 2, 3, 4, 5}, 2)
		assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)
	})
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Chunk([]int{}, 2))
	})
	t.Run("non positive size falls back to default", func(t *testing.T) {
		items := make([]int, DefaultBatchSize+1)
		batches := Chunk(items, 0)
		assert.Len(t, batches, 2)
		assert.Len(t, batches[0], DefaultBatchSize)
	})
}

func TestRunBatches(t *testing.T) {
	t.Run("all batches processed", func(t *testing.T) {
		var processed int64
		batches := Chunk(make([]int, 100), 10)
		err := RunBatches(context.Background(), batches, 3, nil, func(ctx context.Context, index int, batch []int) error {
			atomic.AddInt64(&processed, int64(len(batch)))
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(100), atomic.LoadInt64(&processed))
	})
	t.Run("concurrency cap is respected", func(t *testing.T) {
		const limit = 3
		var inflight, peak int64
		var mu sync.Mutex
		batches := Chunk(make([]int, 40), 2)
		err := RunBatches(context.Background(), batches, limit, nil, func(ctx context.Context, index int, batch []int) error {
			cur := atomic.AddInt64(&inflight, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inflight, -1)
			return nil
		})
		assert.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, peak, int64(limit))
		assert.Greater(t, peak, int64(0))
	})
	t.Run("halt stops batches still waiting on a slot", func(t *testing.T) {
		var ran int64
		var stop int64
		batches := Chunk(make([]int, 100), 10)
		// concurrency 1 serializes the slot, so the first batch to run sets
		// the flag and every batch behind it observes the halt gate
		err := RunBatches(context.Background(), batches, 1, func() bool {
			return atomic.LoadInt64(&stop) == 1
		}, func(ctx context.Context, index int, batch []int) error {
			atomic.AddInt64(&ran, 1)
			atomic.StoreInt64(&stop, 1)
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(1), atomic.LoadInt64(&ran))
	})
	t.Run("worker error surfaces from wait", func(t *testing.T) {
		batches := Chunk(make([]int, 10), 5)
		err := RunBatches(context.Background(), batches, 2, nil, func(ctx context.Context, index int, batch []int) error {
			if index == 1 {
				return assert.AnError
			}
			return nil
		})
		assert.Error(t, err)
	})
}
