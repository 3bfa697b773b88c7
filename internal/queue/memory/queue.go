// Package memory provides an in-process work queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once a closed queue is empty.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO. Enqueue never blocks, so producers that are
// themselves consumers of the queue cannot deadlock on a full buffer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// notify carries at most one pending wake-up for blocked consumers.
	notify chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Enqueue appends item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Dequeue pops the head of the queue, blocking until an item is available,
// the queue is closed and drained, or ctx ends.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// Pass the wake-up on so another idle consumer picks up the rest.
				q.wake()
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.wake()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.notify:
		}
	}
}

// Close stops accepting new items. Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
