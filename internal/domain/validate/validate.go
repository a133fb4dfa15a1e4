// Package validate checks the shape of incoming event batches.
package validate

import (
	"fmt"
	"math"

	"github.com/okian/critic/internal/domain/model"
)

// Batch verifies that every record carries a finite value and a
// non-negative finite timestamp, and that timestamps never decrease
// across the batch. Duplicate timestamps are allowed. An empty batch is
// not an error; it yields a sequence flagged Empty and the caller picks
// the fallback. Records are not copied, so validating an already valid
// batch returns the batch itself.
func Batch(records []model.EventRecord) (model.Sequence, error) {
	if len(records) == 0 {
		return model.Sequence{Empty: true}, nil
	}

	prev := math.Inf(-1)
	for i, r := range records {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return model.Sequence{}, fmt.Errorf("%w: record %d has non-finite value", ErrSchemaViolation, i)
		}
		if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
			return model.Sequence{}, fmt.Errorf("%w: record %d has non-finite timestamp", ErrSchemaViolation, i)
		}
		if r.Timestamp < 0 {
			return model.Sequence{}, fmt.Errorf("%w: record %d has negative timestamp %g", ErrSchemaViolation, i, r.Timestamp)
		}
		if r.Timestamp < prev {
			return model.Sequence{}, fmt.Errorf("%w: record %d out of chronological order (%g after %g)", ErrSchemaViolation, i, r.Timestamp, prev)
		}
		prev = r.Timestamp
	}

	return model.Sequence{Records: records}, nil
}
