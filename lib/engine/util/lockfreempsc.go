// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free Producers: Push only uses atomic operations on the linked list, the
//     condition variable is only touched to wake up an idle consumer
//   - Unbounded Size: Push never blocks, the queue grows as needed
//   - Single Consumer: one internal goroutine moves items into the Recv() channel;
//     any number of goroutines may receive from that channel
//   - Drain on Close: items pushed before Close are still delivered, then the
//     Recv() channel is closed
//   - No Strict FIFO Guarantee under concurrent Push: the order between producers is
//     decided by which CAS succeeds first
//
// The store handles use the queue to hand operations from callers to worker
// goroutines without ever blocking the caller.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool
	size   atomic.Int64

	// wakes the consumer if it is idle
	mu   sync.Mutex
	cond *sync.Cond
	done chan struct{}
}

// NewLockFreeMPSC creates a new queue and starts its consumer goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:  make(chan *T),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed or value is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				q.signal()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin at low contention, yield at high contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signal wakes the consumer. The mutex is held so that a wake-up can't slip in
// between the consumer's emptiness check and its Wait.
func (q *LockFreeMPSC[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume moves items from the linked list to the output channel
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.done)
	defer close(q.out)

	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.out <- value
			q.size.Add(-1)
			next.value = nil // help go gc
			continue
		}

		// queue is empty
		q.mu.Lock()
		for q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		empty := q.head.Load().next.Load() == nil
		q.mu.Unlock()

		if empty && q.closed.Load() {
			return
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed after Close once all pending items were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered.
func (q *LockFreeMPSC[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.signal()
	}
}

// Drained returns a channel that is closed once the queue was closed and every
// item was handed to a receiver.
func (q *LockFreeMPSC[T]) Drained() <-chan struct{} {
	return q.done
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items that were pushed but not yet received.
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.size.Load())
}
