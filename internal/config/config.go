// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and env vars on top.
// - Blocking functions accept context.Context as the first parameter.
// - External errors are wrapped via this package's sentinel kinds.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DiscountRate sets the exponential decay applied to event timestamps.
	DiscountRate float64 `koanf:"discount_rate"`

	// Aggregator selects the aggregation strategy: discounted, uniform.
	Aggregator string `koanf:"aggregator"`

	// WindowSize sets the effective EWMA window of the adaptive normalizer.
	WindowSize int `koanf:"window_size"`

	// ClipMin and ClipMax bound every emitted reward value.
	ClipMin float64 `koanf:"clip_min"`
	ClipMax float64 `koanf:"clip_max"`

	// Normalize toggles adaptive normalization; false clips raw sums directly.
	Normalize bool `koanf:"normalize"`

	// LatencyBudgetMS is the soft per-computation budget. Exceeding it flags
	// the result, it never aborts the call.
	LatencyBudgetMS int `koanf:"latency_budget_ms"`

	// DedupeSize bounds the batch-id idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// DiagQueueSize bounds the in-memory diagnostics queue.
	DiagQueueSize int `koanf:"diag_queue_size"`

	// SinkWorkerCount sets the number of diagnostics sink workers.
	SinkWorkerCount int `koanf:"sink_worker_count"`

	// HistorySize bounds the in-memory diagnostics ring.
	HistorySize int `koanf:"history_size"`

	// MaxHistoryLimit caps GET diagnostics ?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// JSONLPath enables the append-only JSONL sink when non-empty.
	JSONLPath string `koanf:"jsonl_path"`

	// PostgresDSN enables the Postgres diagnostics store when non-empty.
	PostgresDSN string `koanf:"postgres_dsn"`

	// ClickHouseDSN enables the ClickHouse diagnostics store when non-empty.
	ClickHouseDSN string `koanf:"clickhouse_dsn"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		DiscountRate:    0.05,
		Aggregator:      "discounted",
		WindowSize:      100,
		ClipMin:         -1.0,
		ClipMax:         1.0,
		Normalize:       true,
		LatencyBudgetMS: 5,
		DedupeSize:      100_000,
		DiagQueueSize:   100_000,
		SinkWorkerCount: 2,
		HistorySize:     10_000,
		MaxHistoryLimit: 1_000,
	}
}
