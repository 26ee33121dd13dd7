package cluster

import "errors"

// ValidationError reports arguments rejected before any request is sent.
type ValidationError struct {
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
