package domain

import "errors"

// Error taxonomy the core raises: classification and correlation errors
// never abort the pipeline, and orchestrator errors propagate to the caller
// atomically. Storage errors (ErrStorageUnavailable) are not retried inside
// the stores; each failed call surfaces to its caller immediately.
var (
	ErrInvalidEvent      = errors.New("invalid event")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBookmarkCorrupt   = errors.New("bookmark corrupt")

	ErrUnsupportedAction = errors.New("unsupported action")
	ErrInvalidActionData = errors.New("invalid action data")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrExpired           = errors.New("action expired")
	ErrNotExecuted       = errors.New("action not executed")
	ErrOutsideUndoWindow = errors.New("outside undo window")

	ErrRuleConflict      = errors.New("rule conflict")
	ErrHealthCheckFailed = errors.New("health check failed")

	ErrNotFound = errors.New("not found")
)
