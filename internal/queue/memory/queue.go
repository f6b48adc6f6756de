// Package memory provides a bounded in-process queue.
package memory

import (
	"context"
	"fmt"
)

// Queue is a bounded in-memory queue. Producers never block; consumers wait
// on a context.
type Queue[T any] struct {
	ch chan T
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryEnqueue pushes an item without blocking and reports whether it was accepted.
func (q *Queue[T]) TryEnqueue(item T) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	}
}
