package settle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllCollectsEveryOutcomeInOrder(t *testing.T) {
	boom := errors.New("boom")
	results := All(context.Background(), 3, 0, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		time.Sleep(time.Duration(3-i) * time.Millisecond)
		return i * 10, nil
	})

	require.Len(t, results, 3)
	require.Equal(t, StatusFulfilled, results[0].Status())
	require.Equal(t, 0, results[0].Value)
	require.Equal(t, StatusRejected, results[1].Status())
	require.ErrorIs(t, results[1].Err, boom)
	require.Equal(t, StatusFulfilled, results[2].Status())
	require.Equal(t, 20, results[2].Value)
	require.Equal(t, []int{0, 20}, Values(results))
}

func TestAllFailureDoesNotCancelSiblings(t *testing.T) {
	var finished atomic.Int32
	results := All(context.Background(), 4, 0, func(ctx context.Context, i int) (struct{}, error) {
		if i == 0 {
			return struct{}{}, errors.New("fast failure")
		}
		time.Sleep(5 * time.Millisecond)
		if ctx.Err() == nil {
			finished.Add(1)
		}
		return struct{}{}, nil
	})
	require.Len(t, results, 4)
	require.EqualValues(t, 3, finished.Load())
}

func TestAllRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	All(context.Background(), 8, 2, func(ctx context.Context, i int) (int, error) {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return i, nil
	})
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAllEmpty(t *testing.T) {
	results := All(context.Background(), 0, 0, func(ctx context.Context, i int) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	})
	require.Empty(t, results)
}
