// Package model contains domain models passed between layers.
package model

// EventRecord represents a single observation inside an episode batch.
// Timestamp is expressed in seconds since the start of the episode.
type EventRecord struct {
	Timestamp float64 `json:"timestamp"` // non-negative, non-decreasing within a batch
	Value     float64 `json:"value"`     // finite payload value
}

// Sequence is a validated, chronologically ordered batch of records.
// Empty marks a batch that passed validation with zero records.
type Sequence struct {
	Records []EventRecord
	Empty   bool
}

// Len returns the number of records in the sequence.
func (s Sequence) Len() int {
	return len(s.Records)
}

// ScalarReward is the bounded output of a reward computation.
// Value always lies inside the configured clip range. Raw carries the
// pre-normalization aggregate and Normalized reports whether the
// adaptive path produced Value or it was clipped directly from Raw.
type ScalarReward struct {
	Value      float64 `json:"value"`
	Raw        float64 `json:"raw"`
	Normalized bool    `json:"normalized"`
}
