package plugin

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many message dispatches run concurrently across the
// whole pipeline, per spec.md §4.6: "the pipeline may run concurrently up
// to a bounded pool size." Plugins within a single message always run
// sequentially in declaration order, regardless of pool size.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a Pool allowing up to maxWorkers concurrent dispatches.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(maxWorkers))}
}

// Go runs fn once a worker slot is free, blocking until ctx is cancelled
// or a slot becomes available.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}
