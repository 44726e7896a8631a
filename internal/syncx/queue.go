package syncx

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO safe for concurrent producers and consumers.
// Push never blocks; Pop waits for an item, closure or cancellation.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	closed    bool
	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends item. It reports false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the front item. After Close it keeps returning queued
// items and reports false once the queue is drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, false
		}
		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// Close stops accepting items. Queued items remain poppable.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
