package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/critic/internal/adapters/repository"
	"github.com/okian/critic/internal/domain/model"
)

// defaultFlushSize bounds how many diagnostics buffer before a batch insert.
const defaultFlushSize = 100

// schemaDDL bootstraps the diagnostics table. ReplacingMergeTree keyed on
// (session_id, tick) collapses redelivered records during merges; reads use
// FINAL so replays never surface twice.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS diagnostics (
    session_id         String,
    tick               UInt64,
    raw                Float64,
    value              Float64,
    normalized         Bool,
    running_mean       Float64,
    running_variance   Float64,
    observation_count  UInt64,
    config_fingerprint String,
    warnings           Array(String),
    computed_at        DateTime64(6, 'UTC'),
    elapsed_us         Int64
) ENGINE = ReplacingMergeTree(computed_at)
ORDER BY (session_id, tick)
SETTINGS index_granularity = 8192
`

// DiagnosticStore implements repository.Store using ClickHouse. Appends are
// buffered and shipped as native batches; reads flush the buffer first so a
// caller always sees its own writes.
type DiagnosticStore struct {
	conn      *Conn
	flushSize int

	mu     sync.Mutex
	buffer []model.Diagnostic
}

// Option applies a configuration option to the DiagnosticStore.
type Option func(*DiagnosticStore)

// WithFlushSize sets how many buffered diagnostics trigger a batch insert.
// Non-positive values keep the default.
func WithFlushSize(n int) Option {
	return func(s *DiagnosticStore) {
		if n > 0 {
			s.flushSize = n
		}
	}
}

// NewDiagnosticStore creates a ClickHouse-backed diagnostic store.
func NewDiagnosticStore(conn *Conn, opts ...Option) *DiagnosticStore {
	s := &DiagnosticStore{
		conn:      conn,
		flushSize: defaultFlushSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buffer = make([]model.Diagnostic, 0, s.flushSize)
	return s
}

// Compile-time interface check.
var _ repository.Store = (*DiagnosticStore)(nil)

// EnsureSchema creates the diagnostics table if it does not exist yet.
func (s *DiagnosticStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("bootstrapping diagnostics schema: %w", err)
	}
	return nil
}

// Name identifies the store when registered as a sink.
func (s *DiagnosticStore) Name() string {
	return "clickhouse"
}

// Write satisfies the sink contract by delegating to Append.
func (s *DiagnosticStore) Write(ctx context.Context, d model.Diagnostic) error {
	return s.Append(ctx, d)
}

// Append buffers one diagnostic, shipping a batch once flushSize accumulate.
func (s *DiagnosticStore) Append(ctx context.Context, d model.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, d)
	if len(s.buffer) < s.flushSize {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush ships any buffered diagnostics immediately.
func (s *DiagnosticStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Close flushes the buffer. The connection is owned by the caller.
func (s *DiagnosticStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

// flushLocked sends the buffered rows as one native batch. Callers hold mu.
func (s *DiagnosticStore) flushLocked(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO diagnostics (
			session_id, tick, raw, value, normalized,
			running_mean, running_variance, observation_count,
			config_fingerprint, warnings, computed_at, elapsed_us
		)
	`)
	if err != nil {
		return fmt.Errorf("preparing diagnostic batch: %w", err)
	}

	for _, d := range s.buffer {
		err = batch.Append(
			d.SessionID,
			d.Tick,
			d.Raw,
			d.Value,
			d.Normalized,
			d.Mean,
			d.Variance,
			d.Count,
			d.Fingerprint,
			warningStrings(d.Warnings),
			d.ComputedAt,
			d.Elapsed.Microseconds(),
		)
		if err != nil {
			return fmt.Errorf("appending diagnostic to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending diagnostic batch: %w", err)
	}

	s.buffer = s.buffer[:0]
	return nil
}

// Recent returns up to limit diagnostics, newest first. An empty sessionID
// matches every session.
func (s *DiagnosticStore) Recent(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	const columns = `
		session_id, tick, raw, value, normalized,
		running_mean, running_variance, observation_count,
		config_fingerprint, warnings, computed_at, elapsed_us
	`

	var (
		query string
		args  []interface{}
	)
	if sessionID == "" {
		query = `
			SELECT ` + columns + `
			FROM diagnostics FINAL
			ORDER BY computed_at DESC, session_id DESC, tick DESC
			LIMIT ?
		`
		args = []interface{}{limit}
	} else {
		query = `
			SELECT ` + columns + `
			FROM diagnostics FINAL
			WHERE session_id = ?
			ORDER BY tick DESC
			LIMIT ?
		`
		args = []interface{}{sessionID, limit}
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent diagnostics: %w", err)
	}
	defer rows.Close()

	return scanDiagnostics(rows)
}

// Count returns the number of diagnostics persisted across all sessions.
func (s *DiagnosticStore) Count(ctx context.Context) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}

	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM diagnostics FINAL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting diagnostics: %w", err)
	}
	return int(count), nil
}

// Rows interface for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanDiagnostics scans multiple rows into a slice.
func scanDiagnostics(rows chRows) ([]model.Diagnostic, error) {
	var out []model.Diagnostic

	for rows.Next() {
		var (
			d         model.Diagnostic
			warnings  []string
			elapsedUs int64
		)

		err := rows.Scan(
			&d.SessionID,
			&d.Tick,
			&d.Raw,
			&d.Value,
			&d.Normalized,
			&d.Mean,
			&d.Variance,
			&d.Count,
			&d.Fingerprint,
			&warnings,
			&d.ComputedAt,
			&elapsedUs,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning diagnostic row: %w", err)
		}

		if len(warnings) > 0 {
			d.Warnings = make([]model.Warning, len(warnings))
			for i, w := range warnings {
				d.Warnings[i] = model.Warning(w)
			}
		}
		d.Elapsed = time.Duration(elapsedUs) * time.Microsecond
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagnostic rows: %w", err)
	}

	return out, nil
}

func warningStrings(warnings []model.Warning) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = string(w)
	}
	return out
}
