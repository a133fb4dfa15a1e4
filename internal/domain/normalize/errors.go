package normalize

import "errors"

// Strategy construction sentinels.
var (
	ErrUnknownStrategy   = errors.New("unknown normalization strategy")
	ErrInvalidWindowSize = errors.New("window size must be positive")
	ErrInvalidClipRange  = errors.New("clip range must be finite with min below max")
)
