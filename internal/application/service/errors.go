package service

import (
	"errors"
	"fmt"
)

// Service error categories. Every failure returned by a workflow operation
// unwraps to one of these, or is an infrastructure error.
var (
	// ErrNotFound maps to 404
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized maps to 403
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState maps to 409 with code INVALID_STATE
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation maps to 400
	ErrValidation = errors.New("validation failed")

	// ErrConflict maps to 409 with code CONFLICT
	ErrConflict = errors.New("conflict")
)

// Error codes carried to API responses
const (
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidState = "INVALID_STATE"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op string, kind error, code, format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     kind,
	}
}

func notFound(op, format string, args ...interface{}) *ServiceError {
	return newError(op, ErrNotFound, CodeNotFound, format, args...)
}

func unauthorized(op, format string, args ...interface{}) *ServiceError {
	return newError(op, ErrUnauthorized, CodeUnauthorized, format, args...)
}

func invalidState(op, format string, args ...interface{}) *ServiceError {
	return newError(op, ErrInvalidState, CodeInvalidState, format, args...)
}

func validation(op, format string, args ...interface{}) *ServiceError {
	return newError(op, ErrValidation, CodeValidation, format, args...)
}

func conflict(op, format string, args ...interface{}) *ServiceError {
	return newError(op, ErrConflict, CodeConflict, format, args...)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized checks if an error should return HTTP 403.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsInvalidState checks if an error is a lifecycle violation (HTTP 409, INVALID_STATE).
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsValidation checks if an error is a validation error that should return HTTP 400.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict checks if an error is a business conflict (HTTP 409, CONFLICT).
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ErrorCode returns the API code for err, CodeInternal when err is not a service error
func ErrorCode(err error) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsUnauthorized(err):
		return CodeUnauthorized
	case IsInvalidState(err):
		return CodeInvalidState
	case IsValidation(err):
		return CodeValidation
	case IsConflict(err):
		return CodeConflict
	default:
		return CodeInternal
	}
}
