// Package workpool runs functions on a bounded number of goroutines and hands
// back futures that can be waited on, polled or canceled.
package workpool

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem     *semaphore.Weighted
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	running atomic.Int64
}

// New returns a pool running at most workers tasks at once. Values below
// one are raised to one.
func New(workers int) *Pool {
	workers = max(workers, 1)

	return &Pool{sem: semaphore.NewWeighted(int64(workers)), workers: workers}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int { return p.workers }

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Close rejects further submissions and waits for submitted tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

// Waiter is anything with a completion channel.
type Waiter interface {
	Done() <-chan struct{}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	val T
	err error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the result is available.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the task finishes and returns its result.
func (f *Future[T]) Result() (T, error) {
	<-f.done

	return f.val, f.err
}

// Cancel resolves the future with context.Canceled unless it already
// finished, and cancels the task's context. A task that ignores its context
// keeps its worker slot until it returns; its result is discarded.
func (f *Future[T]) Cancel() {
	f.cancel()
	f.resolve(*new(T), context.Canceled)
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Submit schedules fn on p. fn receives a context canceled by ctx or by
// Future.Cancel.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	taskCtx, cancel := context.WithCancel(ctx)
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer cancel()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			f.resolve(*new(T), err)

			return
		}
		defer p.sem.Release(1)

		if err := taskCtx.Err(); err != nil {
			f.resolve(*new(T), err)

			return
		}

		p.running.Add(1)
		v, err := fn(taskCtx)
		p.running.Add(-1)

		f.resolve(v, err)
	}()

	return f, nil
}

// WaitAny blocks until at least one of futures is done or ctx ends. It
// returns nil immediately when futures is empty.
func WaitAny[W Waiter](ctx context.Context, futures []W) error {
	if len(futures) == 0 {
		return nil
	}

	cases := make([]reflect.SelectCase, 0, len(futures)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	for _, f := range futures {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(f.Done())})
	}

	if chosen, _, _ := reflect.Select(cases); chosen == 0 {
		return ctx.Err()
	}

	return nil
}

// WaitAll blocks until every future is done or ctx ends.
func WaitAll[W Waiter](ctx context.Context, futures []W) error {
	for _, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
