// Package queue defines the contract for dispatching diagnostic records.
//
// The reward pipeline emits diagnostics fire-and-forget; the bounded
// in-memory queue decouples those emissions from sink writes so a slow
// sink can never delay a computation.
package queue

import (
	"context"
	"sync"

	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/pkg/metrics"
)

// Default queue configuration constants.
const defaultQueueCapacity = 100000

// Diagnostic represents the payload type flowing through the queue.
type Diagnostic = model.Diagnostic

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record to the queue.
	// Returns false if the record was dropped because the queue is full or closed.
	Enqueue(ctx context.Context, d Diagnostic) bool

	// Dequeue returns a channel that will receive records as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Diagnostic

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, new records are dropped and the dequeue channel drains.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Diagnostic
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	q.records = make(chan Diagnostic, q.capacity)

	// Initialize metrics
	metrics.UpdateDiagQueueCapacity(q.capacity)
	metrics.UpdateDiagQueueSize(0)
	metrics.UpdateDiagQueueUtilization(0.0)

	return q
}

// Enqueue adds a record to the queue without ever blocking the caller.
// A full or closed queue drops the record; losing a diagnostic is
// preferable to stalling a reward computation.
func (q *InMemoryQueue) Enqueue(ctx context.Context, d Diagnostic) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordDiagDropped()
		return false
	}

	select {
	case q.records <- d:
		metrics.RecordDiagEnqueued()
		size := len(q.records)
		metrics.UpdateDiagQueueSize(size)
		metrics.UpdateDiagQueueUtilization(float64(size) / float64(q.capacity))
		return true
	case <-ctx.Done():
		metrics.RecordDiagDropped()
		return false
	default:
		metrics.RecordDiagDropped()
		return false
	}
}

// Dequeue returns a channel that will receive records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Diagnostic {
	out := make(chan Diagnostic)
	go func() {
		defer close(out)
		for d := range q.records {
			select {
			case out <- d:
				size := len(q.records)
				metrics.UpdateDiagQueueSize(size)
				metrics.UpdateDiagQueueUtilization(float64(size) / float64(q.capacity))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.records)
	metrics.UpdateDiagQueueSize(size)
	metrics.UpdateDiagQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	close(q.records)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
