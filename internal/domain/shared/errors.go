// Package shared contains common domain types, errors, events, and the clock
// abstraction used across all domain packages. This package has zero external
// dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "occurrence", "student", "scoring"
	Op      string // Operation that failed, e.g., "Consolidate", "Restore"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Occurrence domain errors
var (
	ErrOccurrenceNotFound   = NewDomainError("occurrence", "Find", ErrNotFound, "occurrence not found")
	ErrAlreadyConsolidated  = NewDomainError("occurrence", "Consolidate", ErrAlreadyProcessed, "occurrence already consolidated")
	ErrInvalidTransition    = NewDomainError("occurrence", "Transition", ErrStateTransition, "invalid occurrence status transition")
	ErrInvalidKind          = NewDomainError("occurrence", "Validate", ErrInvalidInput, "invalid occurrence kind")
	ErrInvalidSanction      = NewDomainError("occurrence", "Validate", ErrInvalidInput, "invalid disciplinary sanction")
	ErrInvalidStatus        = NewDomainError("occurrence", "Validate", ErrInvalidInput, "invalid occurrence status")
	ErrOccurrenceNotRemoved = NewDomainError("occurrence", "Restore", ErrInvalidState, "occurrence is not removed")
)

// Student domain errors
var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("student", "Create", ErrAlreadyExists, "student already exists")
	ErrInvalidStudentNumber = NewDomainError("student", "Validate", ErrInvalidID, "invalid student number")
	ErrScoreOutOfRange      = NewDomainError("student", "Validate", ErrValueOutOfRange, "score outside [0, 10]")
)

// Auth domain errors
var (
	ErrInvalidCredentials = NewDomainError("auth", "Verify", ErrValidation, "invalid credentials")
)
