// Package queue provides the bounded hand-off buffer between the accept loop
// and the worker pool.
package queue

import (
	"errors"
	"sync"
)

// DefaultCapacity is the number of connections a queue holds when no
// capacity is configured.
const DefaultCapacity = 2048

// ErrClosed is returned by Submit and Take once Close has been called.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO guarded by one mutex and two condition variables:
// notEmpty wakes consumers blocked in Take, notFull wakes producers blocked
// in Submit.
//
// Ownership of an item moves into the queue on Submit and out to exactly one
// caller on Take. Items still queued when Close is called are returned to the
// closer, which becomes responsible for them.
//
// Thread safety:
// All methods are safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// items is a ring buffer; head indexes the oldest entry.
	items  []T
	head   int
	count  int
	closed bool
}

// New creates a queue holding at most capacity items.
// A capacity below 1 falls back to DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	q := &Queue[T]{items: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Submit appends item, blocking while the queue is full.
//
// The full condition is re-checked after every wake-up, so a producer never
// proceeds into a queue that another producer filled first.
func (q *Queue[T]) Submit(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.items) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.push(item)
	return nil
}

// TrySubmit appends item only if there is room. It never blocks.
//
// Returns false with a nil error when the queue is full, and ErrClosed when
// the queue has been closed.
func (q *Queue[T]) TrySubmit(item T) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.count == len(q.items) {
		return false, nil
	}

	q.push(item)
	return true, nil
}

// Take removes and returns the oldest item, blocking while the queue is
// empty. It returns ErrClosed once the queue is closed.
func (q *Queue[T]) Take() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	var zero T
	if q.closed {
		return zero, ErrClosed
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--

	q.notFull.Signal()
	return item, nil
}

// Close marks the queue closed, wakes every blocked producer and consumer,
// and returns the items that were still queued in FIFO order.
//
// Calling Close more than once is safe; later calls return nil.
func (q *Queue[T]) Close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	drained := make([]T, 0, q.count)
	var zero T
	for q.count > 0 {
		drained = append(drained, q.items[q.head])
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
		q.count--
	}

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return drained
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// push must be called with mu held and room available.
func (q *Queue[T]) push(item T) {
	tail := (q.head + q.count) % len(q.items)
	q.items[tail] = item
	q.count++
	q.notEmpty.Signal()
}
