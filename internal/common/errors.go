// Package common defines shared constants and sentinel errors used across
// the composer library and the reference attachment service. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Admission / validation errors surfaced by the attachment manager.
	ErrAttachmentLimitExceeded = errors.New("attachment limit exceeded")
	ErrValidationFailed        = errors.New("attachment validation failed")

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Transport-level errors (generic flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrUnavailable    = errors.New("service unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
