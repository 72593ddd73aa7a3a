package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Typed errors below unwrap to one of these so callers can use
// errors.Is for the kind and errors.As for the details.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrReferential indicates a dangling reference to another record.
	ErrReferential = errors.New("referential integrity violated")
	// ErrWorkflowViolation indicates an out-of-order or terminal-state transition.
	ErrWorkflowViolation = errors.New("workflow violation")
	// ErrConflict indicates a concurrent or duplicate write that must be retried or corrected.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the actor's role is not permitted for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates the request carries no actor.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ReferentialError reports a missing referenced record.
type ReferentialError struct {
	Entity string
	ID     int64
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("referenced %s %d does not exist", e.Entity, e.ID)
}

func (e *ReferentialError) Unwrap() error { return ErrReferential }

// WorkflowViolationError reports a rejected state transition. State is unchanged.
type WorkflowViolationError struct {
	Entity string
	ID     int64
	From   string
	Action string
}

func (e *WorkflowViolationError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from status %s", e.Entity, e.ID, e.Action, e.From)
}

func (e *WorkflowViolationError) Unwrap() error { return ErrWorkflowViolation }

// ConflictError reports a duplicate key with differing metadata or a lost race.
type ConflictError struct {
	Entity string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Detail)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing record addressed directly by the caller.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsClientError reports whether err belongs to the typed taxonomy, as opposed
// to an infrastructure failure worth logging.
func IsClientError(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrReferential, ErrWorkflowViolation, ErrConflict, ErrForbidden, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
