package session

import "errors"

var (
	// ErrValidation is returned for malformed input, before any state is touched.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyStopped is returned when a mutation targets a terminal session.
	ErrAlreadyStopped = errors.New("session already stopped")
)
