package service

import "errors"

// Sentinel errors the HTTP layer maps onto status codes.
var (
	// ErrNotFound means the job or contractor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the job moved to a state where the operation no
	// longer applies, e.g. another driver accepted first. Retryable after
	// re-reading the job.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition means the requested lifecycle edge does not
	// exist from the current status, e.g. progressing a cancelled job.
	// Unlike ErrConflict, no retry can make it succeed.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden means the actor's role or identity does not permit the
	// operation on this job.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation means the input itself is unusable.
	ErrValidation = errors.New("validation failed")
)
