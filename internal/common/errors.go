package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrOffline is returned by operations that require connectivity and
	// refuse to queue, such as an explicit sync request.
	ErrOffline = errors.New("offline")

	// Auth errors (invalid or malformed API key).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
