// Package aggregate reduces validated event sequences to one raw scalar.
package aggregate

import (
	"fmt"
	"math"

	"github.com/okian/critic/internal/domain/model"
)

// Default aggregation configuration constants.
const (
	DefaultDiscountRate = 0.05

	StrategyDiscounted = "discounted"
	StrategyUniform    = "uniform"
)

// Aggregator folds a validated sequence into a single raw value in one
// streaming pass. Implementations are pure: no state, no side effects.
type Aggregator interface {
	// Aggregate reduces the sequence. Empty sequences yield 0.
	Aggregate(seq model.Sequence) float64
	// Name reports the strategy identifier used in config fingerprints.
	Name() string
}

// Option applies a configuration option to the Discounted aggregator.
type Option func(*Discounted)

// WithDiscountRate sets the exponential decay rate. Negative or
// non-finite rates are ignored and the default is kept.
func WithDiscountRate(rate float64) Option {
	return func(a *Discounted) {
		if rate >= 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate) {
			a.rate = rate
		}
	}
}

// Discounted weights each value by exp(-rate * timestamp) before summing,
// so older events contribute less. A zero rate degenerates to a plain
// sum. Very large timestamps underflow the weight toward zero, which is
// defined behavior rather than an error.
type Discounted struct {
	rate float64
}

// NewDiscounted creates a discounted aggregator with configuration options.
func NewDiscounted(opts ...Option) *Discounted {
	a := &Discounted{
		rate: DefaultDiscountRate,
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Aggregate computes the discounted weighted sum of the sequence.
func (a *Discounted) Aggregate(seq model.Sequence) float64 {
	var raw float64
	for _, r := range seq.Records {
		raw += r.Value * math.Exp(-a.rate*r.Timestamp)
	}
	return raw
}

// Name reports the strategy identifier.
func (a *Discounted) Name() string { return StrategyDiscounted }

// Rate returns the configured decay rate.
func (a *Discounted) Rate() float64 { return a.rate }

// Uniform sums values without temporal decay. It matches a discounted
// aggregator with rate zero but skips the per-record exponential.
type Uniform struct{}

// NewUniform creates a uniform aggregator.
func NewUniform() *Uniform { return &Uniform{} }

// Aggregate computes the plain sum of the sequence values.
func (a *Uniform) Aggregate(seq model.Sequence) float64 {
	var raw float64
	for _, r := range seq.Records {
		raw += r.Value
	}
	return raw
}

// Name reports the strategy identifier.
func (a *Uniform) Name() string { return StrategyUniform }

// FromConfig creates an Aggregator from its configured strategy name.
// An empty name selects the discounted default.
func FromConfig(strategy string, discountRate float64) (Aggregator, error) {
	if discountRate < 0 || math.IsInf(discountRate, 0) || math.IsNaN(discountRate) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidDiscountRate, discountRate)
	}

	switch strategy {
	case "", StrategyDiscounted:
		return NewDiscounted(WithDiscountRate(discountRate)), nil
	case StrategyUniform:
		return NewUniform(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}
