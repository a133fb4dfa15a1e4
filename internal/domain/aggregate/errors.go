package aggregate

import "errors"

// Strategy construction sentinels.
var (
	ErrUnknownStrategy     = errors.New("unknown aggregation strategy")
	ErrInvalidDiscountRate = errors.New("discount rate must be finite and non-negative")
)
