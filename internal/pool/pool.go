// Package pool provides the bounded task executor shared by every batch in
// the pipeline.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/census-pipeline/internal/metrics"
)

// Pool runs indexed tasks with at most Limit of them in flight.
type Pool struct {
	limit int
	sem   *semaphore.Weighted
}

// New creates a Pool. A limit of zero or less means unbounded.
func New(limit int) *Pool {
	p := &Pool{limit: limit}
	if limit > 0 {
		p.sem = semaphore.NewWeighted(int64(limit))
	}
	return p
}

// Limit reports the configured bound, or 0 when unbounded.
func (p *Pool) Limit() int {
	if p.limit < 0 {
		return 0
	}
	return p.limit
}

// Run invokes fn once for every index in [0, n) and blocks until all calls
// return. Started tasks are never interrupted. If ctx ends while a task is
// waiting for a slot, fn is still called (inline, with the done ctx) so the
// caller can record that key as failed.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if p.sem != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				fn(ctx, i)
				continue
			}
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if p.sem != nil {
				defer p.sem.Release(1)
			}
			metrics.IncActiveTasks()
			defer metrics.DecActiveTasks()
			fn(ctx, i)
		}(i)
	}
	wg.Wait()
}
