package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrSessionNotFound marks operations on a session id that is not registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists marks an attempt to create a session under a taken id.
	ErrSessionExists = errors.New("session already exists")

	// ErrNotStarted marks calls made before Start wired the pipeline.
	ErrNotStarted = errors.New("service not started")
)
