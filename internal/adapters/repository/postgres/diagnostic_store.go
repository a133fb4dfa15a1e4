package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/critic/internal/adapters/repository"
	"github.com/okian/critic/internal/domain/model"
)

// schemaDDL bootstraps the diagnostics table. The statements are idempotent
// so EnsureSchema can run on every startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS diagnostics (
    session_id         TEXT             NOT NULL,
    tick               BIGINT           NOT NULL,
    raw                DOUBLE PRECISION NOT NULL,
    value              DOUBLE PRECISION NOT NULL,
    normalized         BOOLEAN          NOT NULL,
    running_mean       DOUBLE PRECISION NOT NULL,
    running_variance   DOUBLE PRECISION NOT NULL,
    observation_count  BIGINT           NOT NULL,
    config_fingerprint TEXT             NOT NULL,
    warnings           TEXT[]           NOT NULL DEFAULT '{}',
    computed_at        TIMESTAMPTZ      NOT NULL,
    elapsed_us         BIGINT           NOT NULL,
    PRIMARY KEY (session_id, tick)
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_computed_at
    ON diagnostics (computed_at DESC);
`

// DiagnosticStore implements repository.Store using PostgreSQL.
type DiagnosticStore struct {
	pool *Pool
}

// NewDiagnosticStore creates a Postgres-backed diagnostic store.
func NewDiagnosticStore(pool *Pool) *DiagnosticStore {
	return &DiagnosticStore{pool: pool}
}

// Compile-time interface check.
var _ repository.Store = (*DiagnosticStore)(nil)

// EnsureSchema creates the diagnostics table if it does not exist yet.
func (s *DiagnosticStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("bootstrapping diagnostics schema: %w", err)
	}
	return nil
}

// Name identifies the store when registered as a sink.
func (s *DiagnosticStore) Name() string {
	return "postgres"
}

// Write satisfies the sink contract by delegating to Append.
func (s *DiagnosticStore) Write(ctx context.Context, d model.Diagnostic) error {
	return s.Append(ctx, d)
}

// Append persists one diagnostic. A tick that was already persisted for the
// session is left untouched, so redelivered records are not an error.
func (s *DiagnosticStore) Append(ctx context.Context, d model.Diagnostic) error {
	query := `
		INSERT INTO diagnostics (
			session_id, tick, raw, value, normalized,
			running_mean, running_variance, observation_count,
			config_fingerprint, warnings, computed_at, elapsed_us
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
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
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("inserting diagnostic: %w", err)
	}
	return nil
}

// Recent returns up to limit diagnostics, newest first. An empty sessionID
// matches every session.
func (s *DiagnosticStore) Recent(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}

	const columns = `
		session_id, tick, raw, value, normalized,
		running_mean, running_variance, observation_count,
		config_fingerprint, warnings, computed_at, elapsed_us
	`

	var (
		rows pgx.Rows
		err  error
	)
	if sessionID == "" {
		query := `
			SELECT ` + columns + `
			FROM diagnostics
			ORDER BY computed_at DESC, session_id DESC, tick DESC
			LIMIT $1
		`
		rows, err = s.pool.Query(ctx, query, limit)
	} else {
		query := `
			SELECT ` + columns + `
			FROM diagnostics
			WHERE session_id = $1
			ORDER BY tick DESC
			LIMIT $2
		`
		rows, err = s.pool.Query(ctx, query, sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying recent diagnostics: %w", err)
	}
	defer rows.Close()

	return scanDiagnostics(rows)
}

// Count returns the number of diagnostics persisted across all sessions.
func (s *DiagnosticStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM diagnostics`).Scan(&count)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("counting diagnostics: %w", err)
	}
	return count, nil
}

// scanDiagnostics scans multiple rows into a slice.
func scanDiagnostics(rows pgx.Rows) ([]model.Diagnostic, error) {
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

		d.Warnings = warningKinds(warnings)
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

func warningKinds(warnings []string) []model.Warning {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]model.Warning, len(warnings))
	for i, w := range warnings {
		out[i] = model.Warning(w)
	}
	return out
}
