// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	diagqueue "github.com/okian/critic/internal/adapters/mq/queue"
	"github.com/okian/critic/internal/adapters/mq/worker"
	"github.com/okian/critic/internal/adapters/repository"
	"github.com/okian/critic/internal/domain/aggregate"
	"github.com/okian/critic/internal/domain/dedupe"
	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/normalize"
	"github.com/okian/critic/internal/domain/reward"
	"github.com/okian/critic/internal/domain/types"
	"github.com/okian/critic/internal/domain/validate"
	"github.com/okian/critic/pkg/logger"
	"github.com/okian/critic/pkg/metrics"
)

// session pairs an engine with its bookkeeping.
type session struct {
	engine    *reward.Engine
	createdAt time.Time
}

// Service owns the evaluation sessions and the diagnostics pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions map[string]*session
	deduper  dedupe.Deduper
	queue    diagqueue.Queue
	pool     *worker.Pool
	history  *repository.MemoryStore
	sinks    []worker.Sink

	// Configuration
	discountRate  float64
	aggregator    string
	windowSize    int
	clipMin       float64
	clipMax       float64
	normalize     bool
	latencyBudget time.Duration
	dedupeSize    int
	queueSize     int
	workerCount   int
	historySize   int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDiscountRate sets the aggregation discount rate.
func WithDiscountRate(rate float64) Option {
	return func(s *Service) {
		if rate >= 0 {
			s.discountRate = rate
		}
	}
}

// WithAggregator selects the aggregation strategy by name.
func WithAggregator(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.aggregator = name
		}
	}
}

// WithWindowSize sets the adaptive normalizer window.
func WithWindowSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithClipRange bounds emitted reward values.
func WithClipRange(minValue, maxValue float64) Option {
	return func(s *Service) {
		if minValue < maxValue {
			s.clipMin = minValue
			s.clipMax = maxValue
		}
	}
}

// WithNormalize toggles adaptive normalization. When disabled, sessions
// clamp raw aggregates directly.
func WithNormalize(enabled bool) Option {
	return func(s *Service) {
		s.normalize = enabled
	}
}

// WithLatencyBudget sets the soft per-computation budget.
func WithLatencyBudget(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.latencyBudget = d
		}
	}
}

// WithDedupeSize sets the size of the batch-id idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithQueueSize sets the maximum size of the diagnostics queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of diagnostics sink workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithHistorySize bounds the in-memory diagnostics ring.
func WithHistorySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.historySize = size
		}
	}
}

// WithSink registers an additional diagnostics sink (JSONL, Postgres,
// ClickHouse). The in-memory history ring is always present.
func WithSink(sink worker.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessions:      make(map[string]*session),
		discountRate:  aggregate.DefaultDiscountRate,
		aggregator:    aggregate.StrategyDiscounted,
		windowSize:    normalize.DefaultWindowSize,
		clipMin:       normalize.DefaultClipMin,
		clipMax:       normalize.DefaultClipMax,
		normalize:     true,
		latencyBudget: reward.DefaultLatencyBudget,
		dedupeSize:    100000,
		queueSize:     100000,
		workerCount:   2,
		historySize:   10000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the diagnostics pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting reward service...")

	// Fail fast on an unusable pipeline configuration
	if _, err := aggregate.FromConfig(s.aggregator, s.discountRate); err != nil {
		return fmt.Errorf("configuring aggregator: %w", err)
	}
	if _, err := normalize.FromConfig(s.normalizerStrategy(), s.windowSize, s.clipMin, s.clipMax); err != nil {
		return fmt.Errorf("configuring normalizer: %w", err)
	}

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = diagqueue.NewInMemoryQueue(
		diagqueue.WithCapacity(s.queueSize),
	)
	s.history = repository.NewMemoryStore(
		repository.WithCapacity(s.historySize),
	)

	sinks := append([]worker.Sink{s.history}, s.sinks...)
	s.pool = worker.NewPool(s.workerCount, s.queue, sinks)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "reward service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("sinks", len(sinks)),
	)

	return nil
}

// Stop gracefully shuts down the diagnostics pipeline. Buffered diagnostics
// are drained into the sinks before workers exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping reward service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
	}

	// Close closable sinks once the pool stopped writing to them
	for _, sink := range s.sinks {
		if closer, ok := sink.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				s.logger.Warn(ctx, "sink close failed",
					logger.String("sink", sink.Name()),
					logger.Error(err),
				)
			}
		}
	}

	s.started = false
	s.logger.Info(ctx, "reward service stopped")
}

// normalizerStrategy maps the normalize toggle onto a registry name.
func (s *Service) normalizerStrategy() string {
	if s.normalize {
		return normalize.StrategyAdaptive
	}
	return normalize.StrategyClip
}

// newEngine builds a per-session engine from the service configuration.
func (s *Service) newEngine(sessionID string) (*reward.Engine, error) {
	agg, err := aggregate.FromConfig(s.aggregator, s.discountRate)
	if err != nil {
		return nil, fmt.Errorf("configuring aggregator: %w", err)
	}
	norm, err := normalize.FromConfig(s.normalizerStrategy(), s.windowSize, s.clipMin, s.clipMax)
	if err != nil {
		return nil, fmt.Errorf("configuring normalizer: %w", err)
	}

	return reward.NewEngine(
		reward.WithSessionID(sessionID),
		reward.WithAggregator(agg),
		reward.WithNormalizer(norm),
		reward.WithEmitter(&queueEmitter{queue: s.queue}),
		reward.WithLatencyBudget(s.latencyBudget),
	), nil
}

// CreateSession registers a new evaluation session with isolated state.
// An empty id asks the service to generate one.
func (s *Service) CreateSession(ctx context.Context, id string) (types.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return types.SessionView{}, ErrNotStarted
	}

	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.sessions[id]; exists {
		return types.SessionView{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	engine, err := s.newEngine(id)
	if err != nil {
		return types.SessionView{}, err
	}

	sess := &session{engine: engine, createdAt: time.Now().UTC()}
	s.sessions[id] = sess

	metrics.RecordSessionCreated()
	metrics.UpdateSessionsActive(len(s.sessions))
	s.logger.Info(ctx, "session created", logger.String("sessionID", id))

	return viewOf(id, sess), nil
}

// ComputeReward runs one tick batch through the session's engine.
// A non-empty batchID makes the call idempotent: a batch id seen before is
// acknowledged as a duplicate without touching the session statistics.
func (s *Service) ComputeReward(ctx context.Context, sessionID, batchID string, records []model.EventRecord) (model.ScalarReward, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	deduper := s.deduper
	s.mu.RUnlock()

	if !ok {
		return model.ScalarReward{}, false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var dedupeKey string
	if batchID != "" {
		dedupeKey = sessionID + "|" + batchID
		if deduper.SeenAndRecord(ctx, dedupeKey) {
			metrics.RecordDuplicateBatch()
			return model.ScalarReward{}, true, nil
		}
	}

	result, err := sess.engine.Compute(ctx, records)
	if err != nil {
		// The failed batch never touched state; the same id may retry.
		if dedupeKey != "" {
			deduper.Unrecord(ctx, dedupeKey)
		}
		if errors.Is(err, validate.ErrSchemaViolation) {
			metrics.RecordSchemaViolation()
		}
		return model.ScalarReward{}, false, err
	}

	return result, false, nil
}

// SessionState returns the current normalization state of a session.
func (s *Service) SessionState(ctx context.Context, sessionID string) (types.StateView, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return types.StateView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	snap := sess.engine.StateSnapshot()
	return types.StateView{
		Mean:        snap.Mean,
		Variance:    snap.Variance,
		Count:       snap.Count,
		Fingerprint: sess.engine.Fingerprint(),
	}, nil
}

// ResetSession clears a session's normalization statistics in place.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.engine.ResetState()
	s.logger.Info(ctx, "session state reset", logger.String("sessionID", sessionID))
	return nil
}

// DeleteSession tears a session down. Its diagnostics history stays readable.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)

	metrics.RecordSessionClosed()
	metrics.UpdateSessionsActive(len(s.sessions))
	s.logger.Info(ctx, "session deleted", logger.String("sessionID", sessionID))
	return nil
}

// ListSessions returns a view of every live session.
func (s *Service) ListSessions(_ context.Context) []types.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]types.SessionView, 0, len(s.sessions))
	for id, sess := range s.sessions {
		views = append(views, viewOf(id, sess))
	}
	return views
}

// Diagnostics returns up to limit recent diagnostics, newest first. An
// empty sessionID spans all sessions, including deleted ones whose
// records are still in the ring.
func (s *Service) Diagnostics(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error) {
	s.mu.RLock()
	history := s.history
	s.mu.RUnlock()

	if history == nil {
		return nil, ErrNotStarted
	}
	return history.Recent(ctx, sessionID, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		historyCount, _ := s.history.Count(ctx)

		var ticks uint64
		for _, sess := range s.sessions {
			ticks += sess.engine.Ticks()
		}

		stats["sessions"] = len(s.sessions)
		stats["totalTicks"] = ticks
		stats["queueLength"] = queueLen
		stats["historyCount"] = historyCount
		stats["trackedBatches"] = s.deduper.Size()
	}

	return stats
}

// History exposes the in-memory diagnostics store for read wiring.
func (s *Service) History() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

func viewOf(id string, sess *session) types.SessionView {
	snap := sess.engine.StateSnapshot()
	return types.SessionView{
		ID:        id,
		Ticks:     sess.engine.Ticks(),
		Mean:      snap.Mean,
		Variance:  snap.Variance,
		Count:     snap.Count,
		CreatedAt: sess.createdAt.Format(time.RFC3339),
	}
}

// queueEmitter forwards diagnostics to the bounded queue and tees the
// domain metrics the engine itself stays free of.
type queueEmitter struct {
	queue diagqueue.Queue
}

func (e *queueEmitter) Emit(d model.Diagnostic) {
	metrics.RecordRewardComputed()
	metrics.RecordTick()
	metrics.RecordComputeLatency(float64(d.Elapsed.Microseconds()) / 1000.0)
	for _, w := range d.Warnings {
		metrics.RecordWarning(string(w))
		if w == model.WarnEmptyInput {
			metrics.RecordEmptyBatch()
		}
	}

	// Enqueue already counts drops; nothing to do on false.
	_ = e.queue.Enqueue(context.Background(), d)
}
