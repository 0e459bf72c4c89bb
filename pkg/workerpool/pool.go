// Package workerpool runs CPU-bound work on a bounded set of goroutines.
package workerpool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run at once. The zero value is not usable; call New.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool that runs at most size tasks concurrently.
// size <= 0 uses runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn on a pool goroutine and waits for it to finish or for ctx to be done.
// When ctx ends first, Do returns ctx.Err() immediately; fn keeps its slot until it returns.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}

	done := make(chan error, 1)

	go func() {
		defer p.sem.Release(1)

		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for worker: %w", ctx.Err())
	}
}
