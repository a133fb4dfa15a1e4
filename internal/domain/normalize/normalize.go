// Package normalize rescales raw aggregates into a bounded, stable range.
package normalize

import (
	"fmt"
	"math"

	"github.com/okian/critic/internal/domain/model"
)

// Default normalization configuration constants.
const (
	DefaultWindowSize = 100
	DefaultClipMin    = -1.0
	DefaultClipMax    = 1.0

	defaultVarianceFloor = 1e-8
	defaultZEpsilon      = 1e-6
	minWarmupCount       = 2

	StrategyAdaptive = "adaptive"
	StrategyClip     = "clip"
)

// Outcome carries the result of one normalization step together with
// the statistics snapshot diagnostics should report.
type Outcome struct {
	Value      float64
	Normalized bool
	State      Snapshot
	Warnings   []model.Warning
}

// Normalizer turns a raw aggregate into a value inside the clip range.
// Implementations decide whether and how the session state is consulted.
type Normalizer interface {
	// Normalize produces the bounded value for one raw observation.
	Normalize(raw float64, st *State) Outcome
	// Name reports the strategy identifier used in config fingerprints.
	Name() string
}

// Option applies a configuration option to the Adaptive normalizer.
type Option func(*Adaptive)

// WithWindowSize sets the effective averaging window; the decay factor
// becomes 2/(n+1). Non-positive sizes are ignored.
func WithWindowSize(n int) Option {
	return func(a *Adaptive) {
		if n > 0 {
			a.windowSize = n
			a.eta = 2.0 / (float64(n) + 1.0)
		}
	}
}

// WithClipRange sets the output bounds. Ranges that are non-finite or
// not strictly ordered are ignored.
func WithClipRange(minValue, maxValue float64) Option {
	return func(a *Adaptive) {
		if validClipRange(minValue, maxValue) {
			a.clipMin = minValue
			a.clipMax = maxValue
		}
	}
}

// WithVarianceFloor sets the threshold below which standardization is
// considered degenerate. Non-positive floors are ignored.
func WithVarianceFloor(floor float64) Option {
	return func(a *Adaptive) {
		if floor > 0 {
			a.varianceFloor = floor
		}
	}
}

// WithZEpsilon sets the stabilizer added to the variance before the
// square root. Non-positive values are ignored.
func WithZEpsilon(eps float64) Option {
	return func(a *Adaptive) {
		if eps > 0 {
			a.zEpsilon = eps
		}
	}
}

// Adaptive standardizes each raw value against exponentially weighted
// running statistics and squashes the z-score through tanh. While the
// session has fewer than two observations, or the running variance sits
// below the floor, standardization is bypassed and tanh(raw) is
// returned directly.
type Adaptive struct {
	windowSize    int
	eta           float64
	clipMin       float64
	clipMax       float64
	varianceFloor float64
	zEpsilon      float64
}

// NewAdaptive creates an adaptive normalizer with configuration options.
func NewAdaptive(opts ...Option) *Adaptive {
	a := &Adaptive{
		windowSize:    DefaultWindowSize,
		eta:           2.0 / (DefaultWindowSize + 1.0),
		clipMin:       DefaultClipMin,
		clipMax:       DefaultClipMax,
		varianceFloor: defaultVarianceFloor,
		zEpsilon:      defaultZEpsilon,
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Normalize applies the observation to the session statistics and maps
// the raw value into the clip range. The statistics update and the
// snapshot read happen atomically; the arithmetic on the snapshot runs
// outside the lock.
func (a *Adaptive) Normalize(raw float64, st *State) Outcome {
	snap := st.apply(raw, a.eta)

	out := Outcome{State: snap}
	if snap.Count < minWarmupCount || snap.Variance < a.varianceFloor {
		out.Value = math.Tanh(raw)
		out.Warnings = append(out.Warnings, model.WarnNormalizationDegenerate)
	} else {
		z := (raw - snap.Mean) / math.Sqrt(snap.Variance+a.zEpsilon)
		out.Value = math.Tanh(z)
		out.Normalized = true
	}

	if clamped, ok := clamp(out.Value, a.clipMin, a.clipMax); !ok {
		out.Value = clamped
		out.Warnings = append(out.Warnings, model.WarnOutOfRangeOutput)
	}

	return out
}

// Name reports the strategy identifier.
func (a *Adaptive) Name() string { return StrategyAdaptive }

// Eta returns the decay factor derived from the window size.
func (a *Adaptive) Eta() float64 { return a.eta }

// WindowSize returns the configured effective window.
func (a *Adaptive) WindowSize() int { return a.windowSize }

// ClipRange returns the configured output bounds.
func (a *Adaptive) ClipRange() (float64, float64) { return a.clipMin, a.clipMax }

// Clip passes the raw value straight into the clip range without
// touching the session statistics. It backs the normalize=false mode.
type Clip struct {
	clipMin float64
	clipMax float64
}

// NewClip creates a clip normalizer for the given bounds. Invalid bounds
// fall back to the defaults.
func NewClip(minValue, maxValue float64) *Clip {
	c := &Clip{clipMin: DefaultClipMin, clipMax: DefaultClipMax}
	if validClipRange(minValue, maxValue) {
		c.clipMin = minValue
		c.clipMax = maxValue
	}
	return c
}

// Normalize clamps the raw value. The session state is read for the
// diagnostic snapshot but never mutated.
func (c *Clip) Normalize(raw float64, st *State) Outcome {
	out := Outcome{Value: raw}
	if st != nil {
		out.State = st.Snapshot()
	}
	if clamped, ok := clamp(raw, c.clipMin, c.clipMax); !ok {
		out.Value = clamped
		out.Warnings = append(out.Warnings, model.WarnOutOfRangeOutput)
	}
	return out
}

// Name reports the strategy identifier.
func (c *Clip) Name() string { return StrategyClip }

// ClipRange returns the configured output bounds.
func (c *Clip) ClipRange() (float64, float64) { return c.clipMin, c.clipMax }

// FromConfig creates a Normalizer from its configured strategy name.
// An empty name selects the adaptive default.
func FromConfig(strategy string, windowSize int, clipMin, clipMax float64) (Normalizer, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, windowSize)
	}
	if !validClipRange(clipMin, clipMax) {
		return nil, fmt.Errorf("%w: (%g, %g)", ErrInvalidClipRange, clipMin, clipMax)
	}

	switch strategy {
	case "", StrategyAdaptive:
		return NewAdaptive(WithWindowSize(windowSize), WithClipRange(clipMin, clipMax)), nil
	case StrategyClip:
		return NewClip(clipMin, clipMax), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func validClipRange(minValue, maxValue float64) bool {
	if math.IsNaN(minValue) || math.IsInf(minValue, 0) {
		return false
	}
	if math.IsNaN(maxValue) || math.IsInf(maxValue, 0) {
		return false
	}
	return minValue < maxValue
}

// clamp bounds v into [lo, hi] and reports whether it was already inside.
func clamp(v, lo, hi float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return lo, false
	case v < lo:
		return lo, false
	case v > hi:
		return hi, false
	default:
		return v, true
	}
}
