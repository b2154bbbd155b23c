// Package queue provides the bounded in-memory queue that carries event bus
// deliveries to the dispatch workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/autodist/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Delivery is one unit of work taken off the queue.
type Delivery interface {
	Deliver(ctx context.Context)
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a delivery. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, d Delivery) bool

	// Dequeue returns the channel deliveries arrive on. It is closed once the
	// queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Delivery

	// Len returns the number of queued deliveries.
	Len(ctx context.Context) int

	// Close stops accepting deliveries. Queued deliveries are still handed out.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	items    chan Delivery
	capacity int
	metrics  *metrics.Manager

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Delivery, q.capacity)
	q.metrics.UpdateQueue(0, q.capacity)
	return q
}

// Capacity returns the maximum number of queued deliveries.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, d Delivery) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.RecordError("queue", "closed")
		return false
	}

	select {
	case q.items <- d:
		q.metrics.UpdateQueue(len(q.items), q.capacity)
		return true
	case <-ctx.Done():
		q.metrics.RecordError("queue", "context_cancelled")
		return false
	default:
		q.metrics.RecordError("queue", "queue_full")
		return false
	}
}

func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Delivery {
	return q.items
}

func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.items)
	q.metrics.UpdateQueue(size, q.capacity)
	return size
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
