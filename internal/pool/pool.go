// Package pool provides the process-wide bounded worker pool used for
// parallel sub-fetches inside workflow nodes.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent tasks across every workflow instance in the process.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool admitting size concurrent tasks.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}

// Group returns a task group bound to ctx. Tasks share the pool's slots
// with every other group; Wait joins only this group's tasks.
func (p *Pool) Group(ctx context.Context) *Group {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{pool: p, g: g, ctx: gctx}
}

// Group is a set of tasks a node must join before it completes.
type Group struct {
	pool *Pool
	g    *errgroup.Group
	ctx  context.Context
}

// Go schedules fn once a pool slot is free. The first error cancels the group's
// context; queued tasks then return without running.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.g.Go(func() error {
		if err := g.pool.sem.Acquire(g.ctx, 1); err != nil {
			return err
		}
		defer g.pool.sem.Release(1)
		return fn(g.ctx)
	})
}

// Wait blocks until every task returned and reports the first error.
func (g *Group) Wait() error {
	return g.g.Wait()
}

// Map runs fn over items on the pool and returns results in input order.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g := p.Group(ctx)
	for i, item := range items {
		g.Go(func(ctx context.Context) error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
