package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrBuildInProgress = errors.New("index build already in progress")
	ErrBuildFailed     = errors.New("index build failed")
)

// ValidationError describes a build option that is outside its documented
// bounds. Validation errors are returned synchronously, before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid option %q: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a validation error for a single option field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PartialError records a non-essential stage failure. It is absorbed by the
// orchestrator and annotated in the index notes; it never aborts a build.
type PartialError struct {
	Stage string
	Cause error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("stage %s degraded: %v", e.Stage, e.Cause)
}

func (e *PartialError) Unwrap() error {
	return e.Cause
}
