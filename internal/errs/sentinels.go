// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad credentials, bad or expired token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or policy-violating input.
	ErrValidation = errors.New("validation")

	// ErrLimitExceeded indicates the per-user entry cap has been reached.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrConfiguration indicates an invalid or unsupported configuration value.
	ErrConfiguration = errors.New("configuration")
)

// ValidationError carries a corrective message meant for the caller. It matches
// ErrValidation and, when set, its Cause.
type ValidationError struct {
	Msg   string
	Cause error
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Cause }

// Invalid returns a ValidationError with msg.
func Invalid(msg string) error { return &ValidationError{Msg: msg} }

// LimitExceeded reports that the per-user entry cap of limit has been reached.
func LimitExceeded(limit int) error {
	return fmt.Errorf("%w: maximum of %d entries reached", ErrLimitExceeded, limit)
}
