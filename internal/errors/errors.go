// Package errors provides the coded error type shared by the supervisor,
// the project store and the MCP tool layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents standardized error categories
type ErrorCode string

const (
	// Lifecycle errors
	ErrCodeInvalidCommand        ErrorCode = "INVALID_COMMAND"
	ErrCodeInvalidPackageManager ErrorCode = "INVALID_PACKAGE_MANAGER"
	ErrCodeSpawnFailed           ErrorCode = "SPAWN_FAILED"
	ErrCodeWaitFailed            ErrorCode = "WAIT_FAILED"

	// Project store errors
	ErrCodeProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"

	// Validation errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// SupervisorError is the standardized error type for the application
type SupervisorError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Cause      error          `json:"-"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *SupervisorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause
func (e *SupervisorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *SupervisorError) WithContext(key string, value any) *SupervisorError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for the caller
func (e *SupervisorError) WithSuggestion(suggestion string) *SupervisorError {
	e.Suggestion = suggestion
	return e
}

// WithDetails adds detailed information
func (e *SupervisorError) WithDetails(details string) *SupervisorError {
	e.Details = details
	return e
}

// New creates a new SupervisorError
func New(code ErrorCode, message string) *SupervisorError {
	return &SupervisorError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(cause error, code ErrorCode, message string) *SupervisorError {
	return &SupervisorError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Is reports whether err carries the given code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	var supErr *SupervisorError
	if errors.As(err, &supErr) {
		return supErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var supErr *SupervisorError
	if errors.As(err, &supErr) {
		return supErr.Code
	}
	return ErrCodeInternal
}

// --- Convenience constructors ---

// InvalidCommand is returned when a start request carries an empty command
func InvalidCommand() *SupervisorError {
	return New(ErrCodeInvalidCommand, "empty command").
		WithSuggestion("Provide the shell command to run, e.g. 'npm start'")
}

// InvalidPackageManager is returned for a manager other than npm or yarn
func InvalidPackageManager(name string) *SupervisorError {
	return New(ErrCodeInvalidPackageManager, fmt.Sprintf("invalid package manager: %q", name)).
		WithContext("package_manager", name).
		WithSuggestion("Use 'npm' or 'yarn', or call detect_package_manager first")
}

// SpawnFailed wraps the OS error returned when a child could not be created
func SpawnFailed(cause error, shell string) *SupervisorError {
	return Wrap(cause, ErrCodeSpawnFailed, fmt.Sprintf("failed to start process with %s", shell)).
		WithContext("shell", shell).
		WithSuggestion("Check that the working directory exists and the shell is installed")
}

// WaitFailed wraps an error from the OS wait call itself
func WaitFailed(cause error, slot int) *SupervisorError {
	return Wrap(cause, ErrCodeWaitFailed, "failed to wait for process").
		WithContext("slot", slot)
}

// ProjectNotFound is returned when a slot has no stored project record
func ProjectNotFound(slot int) *SupervisorError {
	return New(ErrCodeProjectNotFound, fmt.Sprintf("no project stored at slot %d", slot)).
		WithContext("slot", slot).
		WithSuggestion("Use get_projects to see stored projects")
}

// InvalidInput creates an invalid input error
func InvalidInput(field, reason string) *SupervisorError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid input for %s: %s", field, reason)).
		WithContext("field", field)
}

// DatabaseError creates a database error
func DatabaseError(cause error, operation string) *SupervisorError {
	return Wrap(cause, ErrCodeDatabaseError, fmt.Sprintf("database operation failed: %s", operation)).
		WithContext("operation", operation).
		WithSuggestion("Check the data directory and try again")
}

// InternalError creates an internal error
func InternalError(cause error, details string) *SupervisorError {
	return Wrap(cause, ErrCodeInternal, "internal error occurred").
		WithDetails(details)
}
