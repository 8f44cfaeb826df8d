// Package common defines shared constants and sentinel errors used across
// the Context backend. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Note errors.
	ErrNoteClearRejected = errors.New("refusing to replace non-empty note with empty content")

	// Feature gating.
	ErrFeatureNotInPlan = errors.New("feature not available on current plan")
)
