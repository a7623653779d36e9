// Package util
//
// This file provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Guarantees:
//
//   - Push never blocks and never takes a lock; producers only race on a CAS of the
//     tail node's next pointer.
//   - Unbounded: the queue grows as needed.
//   - One consumer: values are handed out through the channel returned by Recv(),
//     so the consumer can wait on the queue and on timers in the same select.
//   - Items pushed by a single producer are received in push order. There is no
//     global order between producers.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// mpscNode is one element of the queue's linked list.
type mpscNode[T any] struct {
	value *T
	next  atomic.Pointer[mpscNode[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// The list always starts with a sentinel node; head points at the last node
// handed to the consumer, tail at the last node appended.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[mpscNode[T]]
	tail   atomic.Pointer[mpscNode[T]]
	out    chan *T
	closed atomic.Bool
	done   sync.WaitGroup

	// wakeup for the forwarding goroutine when the list is empty.
	// Producers only take mu when sleeping is set.
	mu       sync.Mutex
	cond     *sync.Cond
	sleeping atomic.Bool
}

// NewLockFreeMPSC creates a queue and starts the goroutine that forwards
// pushed items to Recv().
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	q := &LockFreeMPSC[T]{out: make(chan *T)}
	q.cond = sync.NewCond(&q.mu)

	sentinel := &mpscNode[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.done.Add(1)
	go q.forward()
	return q
}

// Push appends value to the queue.
// Returns false if value is nil or the queue has been closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &mpscNode[T]{value: value}
	var spins uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed CAS here means another producer already advanced tail past us
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// tail is lagging behind, help the other producer
			q.tail.CompareAndSwap(tail, next)
		}

		// spin with exponential yield under contention
		if spins < 8 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// forward moves items from the list to the out channel until the queue is
// closed and drained.
func (q *LockFreeMPSC[T]) forward() {
	defer q.done.Done()
	defer close(q.out)

	for {
		moved := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			moved = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil // the node is the new sentinel now
		}

		if !moved && q.closed.Load() {
			return
		}

		if !moved {
			q.mu.Lock()
			q.sleeping.Store(true)
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.sleeping.Store(false)
			q.mu.Unlock()
		}
	}
}

// wake signals the forwarding goroutine if it is (about to be) parked.
// sleeping is stored before the consumer re-checks the list and the list is
// written before producers load sleeping, so one of the two sides always sees
// the other.
func (q *LockFreeMPSC[T]) wake() {
	if q.sleeping.Load() {
		q.mu.Lock()
		q.cond.Signal()
		q.mu.Unlock()
	}
}

// Recv returns the channel the consumer reads from.
// The channel is closed once Close was called and every pushed item was delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close stops accepting new items. Items already pushed are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	// take the lock so the signal cannot slip between the consumer's check and its Wait
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed reports whether Close has been called.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len counts the items not yet handed to the consumer. O(n), for debugging only.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	for n := q.head.Load().next.Load(); n != nil; n = n.next.Load() {
		count++
	}
	return count
}
