// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	ErrNotFound    = errors.New("entity not found")
	ErrValidation  = errors.New("validation error")
	ErrPersistence = errors.New("persistence failure")

	// ErrUnauthorized marks requests without a caller identity.
	ErrUnauthorized = errors.New("unauthorized")

	// External service errors. These never leave the resolver boundary.
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidFormat      = errors.New("invalid format")
)

// Stable machine-readable error codes surfaced to clients.
const (
	CodeInvalidDate       = "invalid_date"
	CodeInvalidTime       = "invalid_time"
	CodeRangeInvalid      = "range_invalid"
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodePersistenceFailed = "persistence_failed"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal_error"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "planner", "course"
	Op      string // Operation that failed, e.g., "AddBusySlot"
	Kind    error  // Base error type for errors.Is() checking
	Code    string // Client-facing code, e.g. "invalid_time"
	Field   string // Offending input field, if any
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, msg)
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
		Code:    defaultCode(kind),
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	de := NewDomainError(domain, op, kind, message)
	de.Err = err
	return de
}

// NewValidationError reports a rejected input field.
func NewValidationError(domain, op, code, field, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrValidation,
		Code:    code,
		Field:   field,
		Message: message,
	}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, message)
}

// NewPersistenceError reports a write the backing store did not confirm.
func NewPersistenceError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrPersistence, "failed to persist changes", err)
}

// WithOp returns a copy of a DomainError re-attributed to another domain operation.
// Non-domain errors are returned unchanged.
func WithOp(err error, domain, op string) error {
	var de *DomainError
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	cp.Domain = domain
	cp.Op = op
	return &cp
}

func defaultCode(kind error) string {
	switch {
	case errors.Is(kind, ErrValidation):
		return CodeInvalidInput
	case errors.Is(kind, ErrNotFound):
		return CodeNotFound
	case errors.Is(kind, ErrPersistence):
		return CodePersistenceFailed
	case errors.Is(kind, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPersistence checks if the error is a persistence failure.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsUnauthorized checks if the error reports a missing caller identity.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidFormat)
}

// CodeOf extracts the client-facing code from err, or CodeInternal.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	return CodeInternal
}

// FieldOf extracts the offending field from err, if any.
func FieldOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}

// MessageOf extracts the human-readable message from err.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
