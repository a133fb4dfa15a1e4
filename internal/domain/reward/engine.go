// Package reward orchestrates validation, aggregation and normalization
// into one bounded scalar per simulation tick.
package reward

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/critic/internal/domain/aggregate"
	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/normalize"
	"github.com/okian/critic/internal/domain/validate"
)

// Default orchestration constants.
const (
	// DefaultLatencyBudget keeps one computation well inside a tick.
	DefaultLatencyBudget = 5 * time.Millisecond

	defaultSessionID = "default"
	neutralRaw       = 0.0
)

// Emitter receives the diagnostic record emitted after each computation.
// Implementations must not block: a slow or failing consumer never
// delays or fails the reward result.
type Emitter interface {
	Emit(d model.Diagnostic)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSessionID tags diagnostics with the owning session.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// WithAggregator sets the aggregation strategy.
func WithAggregator(agg aggregate.Aggregator) Option {
	return func(e *Engine) {
		if agg != nil {
			e.agg = agg
		}
	}
}

// WithNormalizer sets the normalization strategy.
func WithNormalizer(n normalize.Normalizer) Option {
	return func(e *Engine) {
		if n != nil {
			e.norm = n
		}
	}
}

// WithState injects the session statistics, letting a rebuilt engine
// continue where a previous one stopped.
func WithState(st *normalize.State) Option {
	return func(e *Engine) {
		if st != nil {
			e.state = st
		}
	}
}

// WithEmitter sets the diagnostics consumer.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithLatencyBudget sets the soft per-call budget. Non-positive budgets
// are ignored.
func WithLatencyBudget(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.budget = d
		}
	}
}

// Engine sequences Validating, Aggregating and Normalizing for one
// session and applies the fallback policy between the stages. A caller
// either gets a reward whose value lies inside the clip range or an
// explicit validation error; every other condition is absorbed into
// diagnostic warnings.
type Engine struct {
	sessionID string
	agg       aggregate.Aggregator
	norm      normalize.Normalizer
	state     *normalize.State
	emitter   Emitter
	budget    time.Duration

	fingerprint string
	tick        atomic.Uint64
}

// NewEngine creates an engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sessionID: defaultSessionID,
		agg:       aggregate.NewDiscounted(),
		norm:      normalize.NewAdaptive(),
		state:     normalize.NewState(),
		budget:    DefaultLatencyBudget,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	e.fingerprint = Fingerprint(e.agg, e.norm)

	return e
}

// Compute runs one tick worth of records through the pipeline. The
// session statistics stay untouched on every error path, and the
// emitted diagnostic snapshots them exactly as the call left them.
func (e *Engine) Compute(ctx context.Context, records []model.EventRecord) (model.ScalarReward, error) {
	started := time.Now()

	seq, err := validate.Batch(records)
	if err != nil {
		return model.ScalarReward{}, fmt.Errorf("validating batch: %w", err)
	}

	tick := e.tick.Add(1)

	if seq.Empty {
		res := model.ScalarReward{Value: 0.0, Raw: neutralRaw}
		e.emit(tick, res, e.state.Snapshot(), []model.Warning{model.WarnEmptyInput}, started)
		return res, nil
	}

	raw := e.agg.Aggregate(seq)

	// The statistics update is atomic, so cancellation is honored
	// before it, never inside it.
	if err := ctx.Err(); err != nil {
		return model.ScalarReward{}, fmt.Errorf("computation cancelled: %w", err)
	}

	out := e.norm.Normalize(raw, e.state)

	res := model.ScalarReward{Value: out.Value, Raw: raw, Normalized: out.Normalized}
	warnings := out.Warnings
	if time.Since(started) > e.budget {
		warnings = append(warnings, model.WarnLatencyExceeded)
	}
	e.emit(tick, res, out.State, warnings, started)

	return res, nil
}

// Fingerprint returns the configuration fingerprint diagnostics carry.
func (e *Engine) Fingerprint() string { return e.fingerprint }

// SessionID returns the owning session identifier.
func (e *Engine) SessionID() string { return e.sessionID }

// Ticks returns how many computations completed so far.
func (e *Engine) Ticks() uint64 { return e.tick.Load() }

// StateSnapshot returns the current session statistics.
func (e *Engine) StateSnapshot() normalize.Snapshot { return e.state.Snapshot() }

// ResetState clears the session statistics on teardown.
func (e *Engine) ResetState() { e.state.Reset() }

// emit forwards the diagnostic best-effort. A nil emitter drops it.
func (e *Engine) emit(tick uint64, res model.ScalarReward, snap normalize.Snapshot, warnings []model.Warning, started time.Time) {
	if e.emitter == nil {
		return
	}

	e.emitter.Emit(model.Diagnostic{
		SessionID:   e.sessionID,
		Tick:        tick,
		Raw:         res.Raw,
		Value:       res.Value,
		Normalized:  res.Normalized,
		Mean:        snap.Mean,
		Variance:    snap.Variance,
		Count:       snap.Count,
		Fingerprint: e.fingerprint,
		Warnings:    warnings,
		ComputedAt:  started,
		Elapsed:     time.Since(started),
	})
}
