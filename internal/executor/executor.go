// Package executor runs independent tasks on a bounded set of goroutines. CPU
// bound work (grid generation, spatial joins) and I/O bound work (catalog
// searches) share the same orchestration and only differ in the pool plugged in.
package executor

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Executor runs n tasks and returns once every started task has finished.
// Tasks must not share mutable state; each one is handed its own index.
type Executor interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int))
	Workers() int
}

// Pool is an Executor backed by a conc pool limited to a fixed number of
// goroutines.
type Pool struct {
	workers int
}

// NewPool returns a pool running at most workers tasks at a time. Values below
// one are treated as one.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// CPU returns a pool sized to the number of logical CPUs.
func CPU() *Pool {
	return NewPool(runtime.NumCPU())
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Run schedules the tasks and waits for them. Tasks not yet started when ctx is
// done are skipped.
func (p *Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	if n <= 0 {
		return
	}
	cp := pool.New().WithMaxGoroutines(min(p.workers, n))
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		cp.Go(func() {
			if ctx.Err() != nil {
				return
			}
			task(ctx, i)
		})
	}
	cp.Wait()
}

type serial struct{}

// Serial returns an Executor that runs every task inline on the calling
// goroutine, in index order.
func Serial() Executor {
	return serial{}
}

func (serial) Workers() int { return 1 }

func (serial) Run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		task(ctx, i)
	}
}

// Chunks splits n items into at most parts contiguous [start, end) ranges of
// size ceil(n/parts).
func Chunks(n, parts int) [][2]int {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
