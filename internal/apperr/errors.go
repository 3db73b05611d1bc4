// Package apperr defines the error taxonomy shared by the matchmaking and
// penpal packages. Callers classify failures with errors.Is against the
// sentinels below; the API layer maps them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed or missing input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a referenced profile or penpal request that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a detected race or a state that forbids the operation.
	ErrConflict = errors.New("conflict")

	// ErrRequestAlreadyPending is returned when a pending request already
	// exists for the pair, in either direction.
	ErrRequestAlreadyPending = fmt.Errorf("%w: a request is already pending between these users", ErrConflict)

	// ErrAlreadyPenpals is returned when the pair already has an accepted request.
	ErrAlreadyPenpals = errors.New("you are already penpals")

	// ErrForbidden marks an acting user that may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrBackendUnavailable marks a storage I/O failure. The whole operation
	// may be retried by the caller.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Invalid returns an ErrInvalidArgument carrying a description of the bad input.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Backend wraps a storage failure so that both ErrBackendUnavailable and the
// underlying cause match with errors.Is. A nil err yields nil.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}
