// Package settle runs independent tasks concurrently and collects every
// outcome. A failing task never cancels its siblings.
package settle

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) Status() Status {
	if r.Err != nil {
		return StatusRejected
	}
	return StatusFulfilled
}

// All calls fn for every index in [0, n) and returns the results in index
// order once all calls have returned. limit <= 0 means no bound on the
// number of concurrent calls.
func All[T any](ctx context.Context, n int, limit int, fn func(ctx context.Context, i int) (T, error)) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := fn(ctx, i)
			results[i] = Result[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Values returns the fulfilled values, preserving order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
