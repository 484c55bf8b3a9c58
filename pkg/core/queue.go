package core

import "sync/atomic"

// BoundedQueue is a one-shot queue over a fixed list of items. Items are
// handed out in order, each exactly once, until the list is exhausted or the
// queue is aborted. Pull and Abort are safe for concurrent use.
type BoundedQueue[T any] struct {
	items   []T
	cursor  atomic.Int64
	aborted atomic.Bool
}

// NewBoundedQueue creates a queue holding items. The slice is not copied and
// must not be modified afterwards.
func NewBoundedQueue[T any](items []T) *BoundedQueue[T] {
	return &BoundedQueue[T]{items: items}
}

// Pull claims the next item. It returns false once the queue is drained or
// aborted.
func (q *BoundedQueue[T]) Pull() (T, bool) {
	var zero T
	if q.aborted.Load() {
		return zero, false
	}
	i := q.cursor.Add(1) - 1
	if i >= int64(len(q.items)) {
		return zero, false
	}
	return q.items[i], true
}

// Abort makes every subsequent Pull report an empty queue. Items already
// claimed are not affected.
func (q *BoundedQueue[T]) Abort() {
	q.aborted.Store(true)
}

// Aborted reports whether Abort was called.
func (q *BoundedQueue[T]) Aborted() bool {
	return q.aborted.Load()
}

// Len returns the capacity of the queue.
func (q *BoundedQueue[T]) Len() int {
	return len(q.items)
}

// Claimed returns how many items have been handed out.
func (q *BoundedQueue[T]) Claimed() int {
	n := q.cursor.Load()
	if n > int64(len(q.items)) {
		return len(q.items)
	}
	return int(n)
}
