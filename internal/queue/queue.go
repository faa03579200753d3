package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Policy selects what Enqueue does when a bounded queue is full
type Policy int

const (
	// PolicyBlock makes Enqueue wait for free space
	PolicyBlock Policy = iota
	// PolicyDropOldest evicts the head of the queue to make room
	PolicyDropOldest
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDropOldest:
		return "drop_oldest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as used in configuration
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "block":
		return PolicyBlock, nil
	case "drop_oldest", "drop-oldest":
		return PolicyDropOldest, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown queue policy %q (expected block or drop_oldest)", name)
	}
}

// Queue is a thread-safe FIFO. It is safe for any number of producers and
// consumers, though the pipeline uses exactly one of each.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	policy   Policy
	dropped  uint64
	onDrop   func(T)

	// ready and space hold at most one pending wake-up each
	ready chan struct{}
	space chan struct{}
}

// New creates a queue. A capacity of zero or less means unbounded.
func New[T any](capacity int, policy Policy) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
}

// OnDrop registers a callback invoked with every item evicted by
// PolicyDropOldest. It runs without the queue lock held.
func (q *Queue[T]) OnDrop(fn func(T)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrop = fn
}

// Enqueue appends item to the tail. On a full queue with PolicyBlock it
// waits until space frees up or ctx is done.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, item)
			if q.capacity > 0 && len(q.items) < q.capacity {
				notify(q.space)
			}
			q.mu.Unlock()
			notify(q.ready)
			return nil
		}

		if q.policy == PolicyDropOldest {
			evicted := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = append(q.items[1:], item)
			q.dropped++
			onDrop := q.onDrop
			q.mu.Unlock()

			notify(q.ready)
			if onDrop != nil {
				onDrop(evicted)
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dequeue removes and returns the head of the queue, waiting for an item
// if the queue is empty. It returns ctx.Err() once ctx is done, even if
// items are available.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}

		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryDequeue removes and returns the head of the queue without waiting
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	var zero T
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	if remaining > 0 {
		notify(q.ready)
	}
	notify(q.space)
	return item, true
}

// Drain removes and returns every queued item in FIFO order
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	if len(items) > 0 {
		notify(q.space)
	}
	return items
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the bound, or zero for an unbounded queue
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Policy returns the overflow policy
func (q *Queue[T]) Policy() Policy {
	return q.policy
}

// Dropped returns how many items PolicyDropOldest has evicted
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
