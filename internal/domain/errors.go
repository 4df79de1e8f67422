package domain

import "errors"

// Domain errors
var (
	// ErrValidation marks malformed input. Callers wrap it with detail.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers missing, foreign and wrong-state records alike.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a terminal session is asked to move again.
	ErrInvalidTransition = errors.New("invalid session transition")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
