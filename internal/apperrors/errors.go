// Package apperrors carries the error kinds shared by the drill services and
// the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a session, scenario or group id missing from the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks malformed request data such as an unknown hand or action.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig marks a drill configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid drill config")
	// ErrSessionEnded marks an operation on a session that has already ended.
	ErrSessionEnded = errors.New("session ended")
	// ErrConflict marks write contention that outlived the retry budget.
	ErrConflict = errors.New("write conflict")
)

// ServiceError carries a stable "operation.reason" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "operation.reason" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

// New builds a ServiceError for the operation and reason.
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Code extracts the code of the outermost ServiceError, or "" when there is none.
func Code(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
