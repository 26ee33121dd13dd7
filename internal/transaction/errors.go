package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCompleted matches every *IncompleteError.
	ErrNotCompleted = errors.New("transaction not completed")

	// ErrNoCommands is returned when Run is given an empty command list.
	ErrNoCommands = errors.New("transaction has no commands")
)

// StructuralError reports that the transaction could not be opened.
type StructuralError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction: %s: %v", e.Message, e.Err)
	}
	return "transaction: " + e.Message
}

// Unwrap returns the underlying error
func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IncompleteError reports a committed transaction that did not reach
// COMPLETED.
type IncompleteError struct {
	ID    string
	State State
	Err   error // set when polling gave up before a terminal state
}

// Error implements the error interface
func (e *IncompleteError) Error() string {
	msg := fmt.Sprintf("transaction not completed: %s is %s", e.ID, e.State)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrNotCompleted
func (e *IncompleteError) Is(target error) bool {
	return target == ErrNotCompleted
}

// Unwrap returns the polling error, if any
func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// CommandError reports the staged command that failed.
type CommandError struct {
	Index   int
	Command Command
	Err     error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	return fmt.Sprintf("transaction command %d (%s %s): %v", e.Index, e.Command.Method, e.Command.Path, e.Err)
}

// Unwrap returns the command error
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError reports a command rejected before the transaction is opened.
type ValidationError struct {
	Index   int
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("command %d: %s", e.Index, e.Message)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
