package core

import "errors"

// The closed set of failure kinds the pipeline reports. Callers separate
// retryable from terminal failures with errors.Is against these sentinels.
var (
	// ErrValidation marks a malformed or incomplete job, detected before
	// any side effect. Cheap to retry after correction.
	ErrValidation = errors.New("validation failed")

	// ErrTransient marks a fetch, upload, or timeout failure that an
	// external retry policy may reasonably re-attempt.
	ErrTransient = errors.New("transient I/O failure")

	// ErrEngineUnavailable marks a synthesis or tone-conversion engine
	// that failed to initialize or crashed mid-call.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNotConfigured marks missing object-store configuration, distinct
	// from an upload-time transport failure.
	ErrNotConfigured = errors.New("object store not configured")
)
