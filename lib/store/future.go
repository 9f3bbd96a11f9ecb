package store

import (
	"context"
	"sync"
)

// Future is the result of an asynchronous operation. It is resolved exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// NewPromise creates an unresolved Future and the function resolving it.
// Only the first call of resolve has an effect.
func NewPromise[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns an already resolved Future
func Resolved[T any](value T, err error) *Future[T] {
	f, resolve := NewPromise[T]()
	resolve(value, err)
	return f
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed once the Future is resolved
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits until the Future is resolved or ctx is done.
// If ctx is done first, ctx.Err() is returned and the operation keeps running;
// only the wait is abandoned.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the Future is resolved
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}
