package validate

import "errors"

// Validation failure sentinels.
var (
	// ErrSchemaViolation marks a batch that failed structural checks.
	// It is fatal for the call that submitted the batch.
	ErrSchemaViolation = errors.New("schema violation")
)
