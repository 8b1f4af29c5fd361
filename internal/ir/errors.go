package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors raised by the dampening core.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a malformed policy parameter, an empty
	// evaluation round or an unsupported Match value.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeNotFound indicates no active dampening state exists for a key.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is the typed error returned by ir and engine operations.
//
// None of these errors are retryable: the core performs no I/O, so the same
// call with the same input always fails the same way.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Key identifies the affected dampening, if any.
	Key string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InvalidArgument creates an Error with ErrCodeInvalidArgument.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates an Error with ErrCodeNotFound for the given key.
func NotFound(key Key) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "dampening not active",
		Key:     key.String(),
	}
}

// IsInvalidArgument reports whether err is, or wraps, an invalid argument error.
func IsInvalidArgument(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidArgument
	}
	return false
}

// IsNotFound reports whether err is, or wraps, a not found error.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return false
}
