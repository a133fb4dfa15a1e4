package episodes

import "time"

// Config holds configuration for an episode run
type Config struct {
	BaseURL         string        // Base URL of the service
	Sessions        int           // Number of sessions to drive
	Batches         int           // Batches submitted per session
	RecordsPerBatch int           // Records per batch
	Seed            int64         // Seed for deterministic episode generation
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	UseStream       bool          // Submit batches over the WebSocket stream
	ReplayFraction  float64       // Fraction of batches replayed for duplicate checks
	ReplaySessions  int           // Number of sessions re-driven for determinism checks
	OutputFile      string        // Output file for the run report
	LogFile         string        // Log file for driver output
	Verbose         bool          // Enable verbose logging
}

// Record is a single scored observation inside a batch.
type Record struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Batch is one submission unit: an ordered slice of records under an
// idempotency id.
type Batch struct {
	BatchID string   `json:"batch_id"`
	Records []Record `json:"records"`
}

// Episode is the deterministic plan for one session. SessionID is
// assigned by the runner once the service has registered the session.
type Episode struct {
	SessionID string
	Regime    string
	Batches   []Batch
}

// Reward is the scalar reward the service computes for a batch.
type Reward struct {
	Value      float64 `json:"value"`
	Raw        float64 `json:"raw"`
	Normalized bool    `json:"normalized"`
}

// Ack is the acknowledgement for a submitted batch. The same shape
// comes back from the HTTP endpoint and the stream.
type Ack struct {
	BatchID   string  `json:"batch_id,omitempty"`
	Status    string  `json:"status"`
	Duplicate bool    `json:"duplicate"`
	Reward    *Reward `json:"reward,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SessionAck is the response from session creation.
type SessionAck struct {
	ID string `json:"id"`
}

// StateView mirrors the session state endpoint payload.
type StateView struct {
	Mean        float64 `json:"running_mean"`
	Variance    float64 `json:"running_variance"`
	Count       uint64  `json:"observation_count"`
	Fingerprint string  `json:"config_fingerprint"`
}

// Diagnostic mirrors one record from the diagnostics endpoint. Elapsed
// is in nanoseconds.
type Diagnostic struct {
	SessionID  string   `json:"session_id"`
	Tick       uint64   `json:"tick"`
	Raw        float64  `json:"raw"`
	Value      float64  `json:"value"`
	Normalized bool     `json:"normalized"`
	Warnings   []string `json:"warnings,omitempty"`
	Elapsed    int64    `json:"elapsed"`
}

// Stats holds episode run statistics
type Stats struct {
	EpisodesPlanned    int
	SessionsCreated    int
	BatchesSubmitted   int
	BatchesComputed    int
	BatchesDuplicate   int
	BatchesFailed      int
	RecordsSubmitted   int
	DuplicateChecks    int
	DuplicateMisses    int
	ReplayChecks       int
	ReplayMismatches   int
	BoundsViolations   int
	DiagnosticsFetched int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
