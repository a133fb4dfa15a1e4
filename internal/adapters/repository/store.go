// Package repository stores computed reward diagnostics for later inspection.
package repository

import (
	"context"

	"github.com/okian/critic/internal/domain/model"
)

// Store provides read/write access to the diagnostic history.
type Store interface {
	// Append persists a single diagnostic record.
	Append(ctx context.Context, d model.Diagnostic) error

	// Recent returns up to limit diagnostics for a session, newest first.
	// An empty sessionID matches every session.
	// Returns ErrInvalidLimit if limit < 1.
	Recent(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error)

	// Count returns the number of diagnostics currently held.
	Count(ctx context.Context) (int, error)
}
