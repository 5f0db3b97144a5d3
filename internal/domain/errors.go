package domain

import "errors"

// Sentinel errors matched by callers with errors.Is.
var (
	// ErrNotFound indicates a session or prompt id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition indicates an operation rejected before any external
	// call was made: advancing with unscored prompts, generating into a
	// non-empty step, scoring with an empty evaluation set.
	ErrPrecondition = errors.New("precondition violated")

	// ErrBusy indicates another mutating operation is in flight for the
	// same session.
	ErrBusy = errors.New("operation already in flight")

	// ErrGenerationFailed indicates a candidate call exhausted its retries;
	// the whole generation batch is discarded.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrScoringFailed indicates scoring collapsed entirely (no evaluation
	// call succeeded); the prompt reverts to pending.
	ErrScoringFailed = errors.New("scoring failed")
)
