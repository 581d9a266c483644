// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state-transition precondition was violated
	// (e.g. requesting a file that is already checked out).
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the actor's role is not allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrAlreadyCharged reports that the destination user already holds the file.
	// It is a notice, not a failure: callers treat it as success.
	ErrAlreadyCharged = errors.New("already charged")

	// ErrPartialFailure indicates writes may have been applied partially and
	// the held-file membership must be reconciled.
	ErrPartialFailure = errors.New("partial failure")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")
)
