// Package worker runs split branches and partitions concurrently on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// ErrPoolShutdown is returned by Submit after Shutdown was called.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// Pool implements port.WorkerPool. With a positive size, Submit blocks while size tasks
// are in flight; size 0 runs every task on its own goroutine.
type Pool struct {
	size int
	sem  *semaphore.Weighted

	mu       sync.Mutex
	shutdown bool
	group    errgroup.Group
}

var _ port.WorkerPool = (*Pool)(nil)

// Option configures a Pool.
type Option func(*Pool)

// WithSize bounds the number of concurrently running tasks.
func WithSize(n int) Option {
	return func(p *Pool) { p.size = n }
}

// NewPool creates a Pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	if p.size > 0 {
		p.sem = semaphore.NewWeighted(int64(p.size))
	}
	return p
}

// Size returns the concurrency bound, 0 meaning unbounded.
func (p *Pool) Size() int { return p.size }

// Submit schedules task. It blocks until a slot is free or ctx is done; in the latter
// case the task is never started and ctx.Err() is returned.
func (p *Pool) Submit(ctx context.Context, task port.Task) (port.Handle, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		p.release()
		return nil, ErrPoolShutdown
	}

	h := newHandle()
	p.group.Go(func() error {
		defer p.release()
		h.complete(run(ctx, task))
		return nil
	})
	return h, nil
}

// AwaitAll waits for every handle and returns their results in the same order.
func (p *Pool) AwaitAll(handles []port.Handle) []port.Result {
	results := make([]port.Result, len(handles))
	for i, h := range handles {
		<-h.Done()
		results[i] = h.Result()
	}
	return results
}

// Shutdown rejects new tasks and waits for in-flight ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warnf("Worker pool shutdown timed out with tasks still running.")
		return ctx.Err()
	}
}

func (p *Pool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

func run(ctx context.Context, task port.Task) (res port.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Worker task panicked: %v\n%s", r, debug.Stack())
			res = port.Result{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	v, err := task(ctx)
	return port.Result{Value: v, Err: err}
}

type handle struct {
	done chan struct{}
	res  port.Result
}

func newHandle() *handle { return &handle{done: make(chan struct{})} }

func (h *handle) complete(r port.Result) {
	h.res = r
	close(h.done)
}

// Done implements port.Handle.
func (h *handle) Done() <-chan struct{} { return h.done }

// Result implements port.Handle. It blocks until the task finished.
func (h *handle) Result() port.Result {
	<-h.done
	return h.res
}
