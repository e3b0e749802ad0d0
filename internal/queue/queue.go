// Package queue provides the bounded FIFO buffering prepared delivery
// records between the job tracker and the flush worker.
package queue

import "sync"

// Queue is a generic thread-safe bounded FIFO. When full, pushing evicts the
// oldest item; a stalled flush target must not grow memory without limit.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	evicted uint64
}

// New creates an empty queue holding at most limit items. A limit of zero or
// less means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends an item, evicting the oldest when the queue is full.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items = q.items[1:]
		q.evicted++
	}
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item. The second return is false when
// the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Evicted returns how many items were dropped to make room.
func (q *Queue[T]) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Drain returns all queued items and empties the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = make([]T, 0, cap(items))
	return items
}

// Requeue puts items back at the front, preserving their order. Used when a
// flush fails and the batch must be retried.
func (q *Queue[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(items, q.items...)
	if q.limit > 0 && len(q.items) > q.limit {
		over := len(q.items) - q.limit
		q.items = q.items[over:]
		q.evicted += uint64(over)
	}
}
