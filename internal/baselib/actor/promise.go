package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// promiseImpl is the concrete Promise/Future pair used to bridge an actor's
// Receive result back to an Ask caller. It is completed exactly once; every
// subsequent Complete call is a no-op that reports failure.
type promiseImpl[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	result   fn.Result[T]
	fulfiled bool
}

// NewPromise creates a new, unfulfilled Promise.
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{
		done: make(chan struct{}),
	}
}

// Complete attempts to set the result of the future. It returns true if this
// call successfully set the result, false if the future was already
// completed.
func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fulfiled {
		return false
	}

	p.result = result
	p.fulfiled = true
	close(p.done)

	return true
}

// Future returns the Future view of this Promise.
func (p *promiseImpl[T]) Future() Future[T] {
	return (*futureImpl[T])(p)
}

// futureImpl is the consumer-facing half of promiseImpl. It shares the same
// underlying struct so completion is visible to every Future derived from a
// Promise without any extra synchronization.
type futureImpl[T any] promiseImpl[T]

// Await blocks until the result is available or the context is cancelled.
func (f *futureImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply registers a function to transform the result of a future,
// returning a new Future that completes once the transformation has run.
func (f *futureImpl[T]) ThenApply(
	ctx context.Context, transform func(T) T) Future[T] {

	next := NewPromise[T]()

	go func() {
		result := f.Await(ctx)

		result.WhenOk(func(val T) {
			next.Complete(fn.Ok(transform(val)))
		})
		result.WhenErr(func(err error) {
			next.Complete(fn.Err[T](err))
		})
	}()

	return next.Future()
}

// OnComplete registers a callback to run once the future resolves, or once
// the context is cancelled, whichever happens first.
func (f *futureImpl[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		cb(f.Await(ctx))
	}()
}
