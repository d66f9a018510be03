package types

import "fmt"

// ErrorCode represents a unified error code across the library.
type ErrorCode string

const (
	// ErrInvalidConfiguration marks an out-of-bound configuration value.
	// Fatal at construction time, never recoverable at runtime.
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// ErrRecordNotFound marks a lookup for a record that is in neither
	// tier. Probing callers receive an empty result instead; the code is
	// used internally when a consolidation pass must abort cleanly.
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewInvalidConfiguration creates an INVALID_CONFIGURATION error.
func NewInvalidConfiguration(format string, args ...any) *Error {
	return &Error{Code: ErrInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewRecordNotFound creates a RECORD_NOT_FOUND error for the given id.
func NewRecordNotFound(id string) *Error {
	return &Error{Code: ErrRecordNotFound, Message: fmt.Sprintf("record %q not found", id)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsInvalidConfiguration reports whether err carries INVALID_CONFIGURATION.
func IsInvalidConfiguration(err error) bool {
	return GetErrorCode(err) == ErrInvalidConfiguration
}

// IsRecordNotFound reports whether err carries RECORD_NOT_FOUND.
func IsRecordNotFound(err error) bool {
	return GetErrorCode(err) == ErrRecordNotFound
}
