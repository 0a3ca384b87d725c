// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"

	"telegram-clicker/internal/repository"
)

// ErrNotFound is wrapped by every entity-specific not-found error.
var ErrNotFound = errors.New("not found")

// Claim and task errors. Each is a distinct failure kind for callers to match with errors.Is.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnauthorized         = errors.New("invalid telegram data")
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrTaskNotFound         = fmt.Errorf("task %w", ErrNotFound)
	ErrTaskInactive         = errors.New("this task is no longer active")
	ErrUnsupportedTaskType  = errors.New("invalid task type or missing task data for this operation")
	ErrWaitNotConfigured    = errors.New("task wait time is not configured")
	ErrTaskNotStarted       = errors.New("task not started")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
)

// ClaimFailedError is returned when the claim transaction itself fails.
// No state was changed.
type ClaimFailedError struct {
	Cause error
}

func (e *ClaimFailedError) Error() string {
	return fmt.Sprintf("failed to claim task: %v", e.Cause)
}

func (e *ClaimFailedError) Unwrap() error {
	return e.Cause
}

// Conflict reports whether the transaction lost a serialization race. The
// identical request may be re-issued.
func (e *ClaimFailedError) Conflict() bool {
	return repository.IsSerializationFailure(e.Cause)
}

// isKnownError reports whether err is one of the classified failure kinds.
func isKnownError(err error) bool {
	for _, known := range []error{
		ErrInvalidRequest,
		ErrUnauthorized,
		ErrNotFound,
		ErrTaskInactive,
		ErrUnsupportedTaskType,
		ErrWaitNotConfigured,
		ErrTaskNotStarted,
		ErrTaskAlreadyCompleted,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
