package transport

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized transport error.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	// ErrorInvalidConfig: bad endpoint or empty identity.
	ErrorInvalidConfig
	// ErrorUnreachable: preflight failed, no connection was attempted.
	ErrorUnreachable
	// ErrorRejected: the server refused the handshake.
	ErrorRejected
	// ErrorConnection: a dial failed; retried by the session.
	ErrorConnection
	// ErrorReconnectFailed: the retry budget is exhausted.
	ErrorReconnectFailed
	// ErrorClosed: the session was closed locally.
	ErrorClosed
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorUnreachable:
		return "unreachable"
	case ErrorRejected:
		return "rejected"
	case ErrorConnection:
		return "connection_error"
	case ErrorReconnectFailed:
		return "reconnect_failed"
	case ErrorClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured transport error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// CodeOf returns the code of the outermost *Error in err's chain.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrorUnknown
}

// IsTerminal reports whether err ends a session for good and needs a user retry.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case ErrorInvalidConfig, ErrorUnreachable, ErrorRejected, ErrorReconnectFailed:
		return true
	default:
		return false
	}
}

// UserMessage renders err for display next to a retry affordance.
func UserMessage(err error) string {
	var te *Error
	if !errors.As(err, &te) {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	switch te.Code {
	case ErrorUnreachable:
		return te.Message + ". Please make sure the server is running."
	case ErrorReconnectFailed:
		return "Failed to reconnect to the server. Please try again."
	default:
		return te.Message
	}
}
