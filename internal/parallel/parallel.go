// Package parallel provides the fork-join loop used by every row-parallel
// stage, and the per-row reference counts that let streaming stages free
// source rows as soon as their last consumer has read them.
package parallel

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// For calls fn for every i in [0, n) on up to workers goroutines and waits
// for all of them. Indices are handed out one at a time from a shared
// counter, so slow iterations do not hold up a fixed chunk of work.
//
// The first error returned by fn, or cancellation of ctx, stops further
// indices from being handed out; iterations already running finish.
// workers <= 0 means GOMAXPROCS.
func For(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	g, gctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := fn(i); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// RowRefs counts, for each source row, how many outstanding consumers still
// need it. Counts are atomic: parallel consumers may release the same row.
type RowRefs struct {
	counts []atomic.Int32
}

// NewRowRefs creates zeroed counts for n rows.
func NewRowRefs(n int) *RowRefs {
	return &RowRefs{counts: make([]atomic.Int32, n)}
}

// Add registers delta more consumers of row y.
func (r *RowRefs) Add(y int, delta int32) {
	r.counts[y].Add(delta)
}

// Count returns the outstanding consumers of row y.
func (r *RowRefs) Count(y int) int32 {
	return r.counts[y].Load()
}

// Release drops one consumer of row y and reports whether it was the last.
// Exactly one caller observes true for each row that reaches zero.
func (r *RowRefs) Release(y int) bool {
	return r.counts[y].Add(-1) == 0
}
