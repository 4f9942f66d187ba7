package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidActivity is returned when an activity draft or patch violates an invariant.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrAggregationConflict signals that two recomputations of the same summary raced.
	ErrAggregationConflict = errors.New("aggregation conflict")
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned on unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is returned when an inactive user attempts to log in.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrInvalidInput covers malformed account or profile input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLiveActivityNotFound is returned when a live tracking session cannot be located.
	ErrLiveActivityNotFound = errors.New("live activity not found")
	// ErrLiveActivityOpen is returned when starting a session while another is still open.
	ErrLiveActivityOpen = errors.New("a live activity is already in progress")
	// ErrLiveActivityState is returned when a session's status does not allow the operation.
	ErrLiveActivityState = errors.New("live activity state does not allow this operation")
)

// ValidationError lists every problem found while validating an input.
type ValidationError struct {
	kind     error
	Problems []string
}

func newValidationError(kind error, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{kind: kind, Problems: problems}
}

func (e *ValidationError) Error() string {
	return e.kind.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}
