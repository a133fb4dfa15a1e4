// Package worker drains queued diagnostics into the configured sinks.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/pkg/logger"
	"github.com/okian/critic/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount      = 2
	defaultSinkWriteTimeout = 5 * time.Second
	queueGaugeInterval      = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Diagnostic abstracts what workers read off the queue.
type Diagnostic = model.Diagnostic

// Sink persists one diagnostic record. Writes are best-effort: a
// failing sink is logged and skipped, it never stops the drain loop.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write persists a single record, honoring ctx for cancellation.
	Write(ctx context.Context, d Diagnostic) error
}

// Queue defines how workers receive diagnostics.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Diagnostic
}

// Worker fans queued diagnostics out to every sink.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any in-flight record before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for draining diagnostics.
type InMemoryWorker struct {
	queue Queue
	sinks []Sink
	name  string

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		sinks:    sinks,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	recordChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case d, ok := <-recordChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			w.drain(ctx, d)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// drain writes a single record to every sink. Failures are logged and
// counted; the remaining sinks still get the record.
func (w *InMemoryWorker) drain(ctx context.Context, d Diagnostic) {
	for _, sink := range w.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, defaultSinkWriteTimeout)

		start := time.Now()
		err := sink.Write(writeCtx, d)
		latency := float64(time.Since(start).Milliseconds())
		cancel()

		metrics.RecordSinkWriteLatency(sink.Name(), latency)
		if err != nil {
			metrics.RecordSinkError(sink.Name())
			w.logger.Error(ctx, "sink write failed",
				logger.String("sink", sink.Name()),
				logger.String("session_id", d.SessionID),
				logger.Int64("tick", int64(d.Tick)),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordSinkWrite(sink.Name())
	}
}

// Pool manages multiple workers draining the same queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	sinks   []Sink

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, sinks []Sink) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		sinks:    sinks,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			sinks,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateSinkWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	// Keep the queue gauge fresh even when no records flow.
	go p.startQueueGauge(ctx)
}

// startQueueGauge periodically refreshes the queue size metrics.
func (p *Pool) startQueueGauge(ctx context.Context) {
	lener, ok := p.queue.(interface{ Len(ctx context.Context) int })
	if !ok {
		return
	}

	ticker := time.NewTicker(queueGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateDiagQueueSize(lener.Len(ctx))
		}
	}
}

// Stop stops all workers without closing the queue. Records still
// buffered stay queued; Shutdown is the draining variant.
func (p *Pool) Stop() {
	p.signalShutdown()

	for _, worker := range p.workers {
		ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
		_ = worker.Shutdown(ctx)
		cancel()
	}
}

// Shutdown gracefully shuts down the entire worker pool. The queue is
// closed first so workers drain what is already buffered before exiting.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	p.signalShutdown()

	return nil
}

// signalShutdown stops the queue gauge loop exactly once.
func (p *Pool) signalShutdown() {
	p.stopOnce.Do(func() { close(p.shutdown) })
}
