// Package common defines shared constants and sentinel errors used across
// OutOfSight components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal        = errors.New("internal error")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPayloadTooLarge   = errors.New("payload too large")

	// Archive codec errors.
	ErrEncryption         = errors.New("encryption failed")
	ErrDecryption         = errors.New("decryption failed")
	ErrUnsafeArchiveEntry = errors.New("unsafe archive entry")

	// Object store errors.
	ErrUpload         = errors.New("upload failed")
	ErrDownload       = errors.New("download failed")
	ErrObjectNotFound = errors.New("object not found in storage")
	ErrDeletion       = errors.New("deletion failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
