// Package jobqueue provides a FIFO queue drained by a single worker goroutine.
//
// Jobs run one at a time in submission order. A caller's context only bounds
// how long the job may wait in the queue: once the worker starts a job it runs
// to completion under a context that is never cancelled.
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	archerr "github.com/nicktill/statvault/pkg/errors"
)

const (
	statePending int32 = iota
	stateRunning
	stateAbandoned
)

type job struct {
	ctx   context.Context
	state atomic.Int32
	run   func(ctx context.Context)
	skip  func(err error)
}

// Queue serializes jobs onto one worker.
type Queue struct {
	name    string
	jobs    chan *job
	onDepth func(int)

	mu     sync.RWMutex
	closed bool

	busy atomic.Bool
	done chan struct{}
}

// New starts a queue holding up to size pending jobs. onDepth, if set, is
// called with the pending count whenever it changes.
func New(name string, size int, onDepth func(int)) *Queue {
	if size <= 0 {
		size = 1
	}
	if onDepth == nil {
		onDepth = func(int) {}
	}
	q := &Queue{
		name:    name,
		jobs:    make(chan *job, size),
		onDepth: onDepth,
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer close(q.done)
	for j := range q.jobs {
		q.onDepth(len(q.jobs))
		if !j.state.CompareAndSwap(statePending, stateRunning) {
			continue // caller gave up
		}
		if err := j.ctx.Err(); err != nil {
			j.skip(timeoutError(q.name, err))
			continue
		}
		q.busy.Store(true)
		j.run(context.WithoutCancel(j.ctx))
		q.busy.Store(false)
	}
}

// Len returns the number of jobs waiting to start.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Busy reports whether a job is currently running.
func (q *Queue) Busy() bool {
	return q.busy.Load()
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) enqueue(ctx context.Context, j *job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return archerr.New(archerr.CodeEngineClosed, fmt.Sprintf("%s queue is closed", q.name))
	}
	select {
	case q.jobs <- j:
		q.onDepth(len(q.jobs))
		return nil
	case <-ctx.Done():
		return timeoutError(q.name, ctx.Err())
	}
}

func timeoutError(name string, cause error) error {
	return archerr.Wrap(cause, archerr.CodeEngineQueueTimeout, fmt.Sprintf("gave up waiting in %s queue", name))
}

// Result is the outcome of one job.
type Result[T any] struct {
	Value T
	Err   error
}

// Pending is a submitted job whose result has not been collected yet.
type Pending[T any] struct {
	job *job
	out chan Result[T]
}

// Submit enqueues fn and returns immediately. Submission order is the
// execution order.
func Submit[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) *Pending[T] {
	out := make(chan Result[T], 1)
	j := &job{ctx: ctx}
	j.run = func(runCtx context.Context) {
		v, err := protect(runCtx, fn)
		out <- Result[T]{Value: v, Err: err}
	}
	j.skip = func(err error) {
		out <- Result[T]{Err: err}
	}

	if err := q.enqueue(ctx, j); err != nil {
		j.state.Store(stateAbandoned)
		out <- Result[T]{Err: err}
	}
	return &Pending[T]{job: j, out: out}
}

// Do submits fn and waits for its result.
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	return Submit(ctx, q, fn).Wait(ctx)
}

// Done returns a channel that receives the result exactly once.
func (p *Pending[T]) Done() <-chan Result[T] {
	return p.out
}

// Wait blocks for the result. If ctx ends before the job has started, the job
// is abandoned and a queue timeout is returned. A job that already started is
// always waited for.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-p.out:
		return r.Value, r.Err
	case <-ctx.Done():
		if p.job.state.CompareAndSwap(statePending, stateAbandoned) {
			var zero T
			return zero, timeoutError("job", ctx.Err())
		}
		r := <-p.out
		return r.Value, r.Err
	}
}

// protect turns a panic inside fn into an error so the worker keeps draining.
func protect[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
