package models

import "errors"

var (
	// ErrInsufficientData signals fewer samples than the configured minimum.
	// It is a soft outcome: orchestration surfaces it as a status, never a
	// crash, so callers can render a friendly message.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrStorageUnavailable wraps fetch or persist failures against the
	// backing store. Retries, if any, belong to the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidConfig marks configuration rejected at construction time.
	ErrInvalidConfig = errors.New("invalid configuration")
)
