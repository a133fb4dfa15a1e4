// Package types contains common read-model types used across the application
package types

// StateView is a point-in-time snapshot of a session's normalization state.
type StateView struct {
	Mean        float64 `json:"running_mean"`
	Variance    float64 `json:"running_variance"`
	Count       uint64  `json:"observation_count"`
	Fingerprint string  `json:"config_fingerprint"`
}

// SessionView summarizes a live session for listing endpoints.
type SessionView struct {
	ID        string  `json:"id"`
	Ticks     uint64  `json:"ticks"`
	Mean      float64 `json:"running_mean"`
	Variance  float64 `json:"running_variance"`
	Count     uint64  `json:"observation_count"`
	CreatedAt string  `json:"created_at"`
}
