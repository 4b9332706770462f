// Package queue provides an unbounded FIFO queue safe for concurrent
// producers and consumers, with a bounded-wait pop used by the connection
// pool's claim loop.
package queue

import (
	"sync"
	"time"
)

// Queue is an unbounded FIFO. The zero value is not usable; create queues
// with New.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T

	// wake has capacity 1 and coalesces push signals. A consumer that takes
	// an item while more remain re-arms it so further waiters chain-wake.
	wake chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{wake: make(chan struct{}, 1)}
}

// Push appends v to the tail of the queue. It never blocks.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// TryPop removes and returns the head of the queue without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked()
}

// Pop removes and returns the head of the queue, waiting up to wait for an
// item to arrive. It returns false if the wait elapses with the queue empty.
func (q *Queue[T]) Pop(wait time.Duration) (T, bool) {
	if v, ok := q.TryPop(); ok {
		return v, true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if v, ok := q.TryPop(); ok {
				return v, true
			}
		case <-timer.C:
			var zero T
			return zero, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns all queued items in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) takeLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return v, true
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
