package model

import "time"

// Warning identifies a recoverable condition raised during a computation.
type Warning string

// Warning kinds surfaced through diagnostics. Each maps to a non-fatal
// condition: the computation still returns a usable reward.
const (
	WarnEmptyInput              Warning = "empty_input"
	WarnNormalizationDegenerate Warning = "normalization_degenerate"
	WarnOutOfRangeOutput        Warning = "out_of_range_output"
	WarnLatencyExceeded         Warning = "latency_exceeded"
)

// Diagnostic is the side-channel record emitted after each computation.
// It snapshots the running statistics as they were immediately after the
// batch was applied, so consumers can replay normalization decisions.
type Diagnostic struct {
	SessionID   string        `json:"session_id"`
	Tick        uint64        `json:"tick"`
	Raw         float64       `json:"raw"`
	Value       float64       `json:"value"`
	Normalized  bool          `json:"normalized"`
	Mean        float64       `json:"running_mean"`
	Variance    float64       `json:"running_variance"`
	Count       uint64        `json:"observation_count"`
	Fingerprint string        `json:"config_fingerprint"`
	Warnings    []Warning     `json:"warnings,omitempty"`
	ComputedAt  time.Time     `json:"computed_at"`
	Elapsed     time.Duration `json:"elapsed"`
}

// HasWarning reports whether the diagnostic carries the given kind.
func (d Diagnostic) HasWarning(w Warning) bool {
	for _, have := range d.Warnings {
		if have == w {
			return true
		}
	}
	return false
}
