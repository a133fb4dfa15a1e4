package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrClosed reports an operation against an already closed queue.
	ErrClosed = errors.New("queue closed")
)
