package repository

import "errors"

// Sentinel kinds for diagnostic store errors.
var (
	ErrInvalidLimit = errors.New("invalid history limit")
	ErrClosed       = errors.New("store closed")
)
