// Package common defines shared constants and sentinel errors used across
// client and server layers of JournalKeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorValidation    = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Key handling and encryption errors. These are never downgraded to
	// "not found" or transport errors by callers.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrNotInitialized       = errors.New("encryption service not initialized")
	ErrKeyStoreUnavailable  = errors.New("key store unavailable")
	ErrWeakParameters       = errors.New("key derivation parameters below floor")
	ErrTierMismatch         = errors.New("encryption tier mismatch")

	// Envelope format errors.
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")

	// ErrSyncTransient marks a network or 5xx failure that is retried.
	ErrSyncTransient = errors.New("transient sync failure")
)
