// Package common defines shared constants and sentinel errors used across
// FuturaVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Configuration errors. ErrNoBackendConfigured is terminal: uploads are
	// rejected outright, never retried.
	ErrNoBackendConfigured  = errors.New("no storage backend configured")
	ErrBackendNotConfigured = errors.New("storage backend not configured")

	// Validation errors, raised before any network call.
	ErrValidation         = errors.New("validation error")
	ErrFileTooLarge       = errors.New("file too large for backend")
	ErrChunkCountExceeded = errors.New("chunk count exceeds backend limit")

	// Upload-grant lifecycle errors.
	ErrGrantExpired = errors.New("upload grant expired")

	// Canister adapter precondition: a cryptographic identity session must
	// already be established.
	ErrIdentityRequired = errors.New("canister identity not established")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
