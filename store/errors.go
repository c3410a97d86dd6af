package store

import "errors"

var (
	// ErrSessionNotFound is returned by any per-session Storage operation
	// addressing a client-id with no session.
	ErrSessionNotFound = errors.New("session not found")
)
