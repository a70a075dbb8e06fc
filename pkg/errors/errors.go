// Package errors provides structured error handling for Comet
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeParse represents malformed CSV structure errors
	// (unterminated quote, empty or duplicate header). Always fatal.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeConfig represents invalid configuration errors, raised at
	// construction time only.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeSizeLimit represents exceeded size limits (field count,
	// buffer size, binary size).
	ErrorTypeSizeLimit ErrorType = "size_limit"
	// ErrorTypeCancelled represents an explicit abort.
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeTimeout represents a deadline-driven abort.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCapability represents capability/feature not supported errors.
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeTransport represents cross-boundary transport errors
	// (worker unavailable, strategy rejected the input shape).
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error's type, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsCancellation reports whether the error is an abort or a timeout.
// The two kinds stay distinguishable via IsType; this helper answers the
// coarser "did the caller cancel" question.
func IsCancellation(err error) bool {
	return IsType(err, ErrorTypeCancelled) || IsType(err, ErrorTypeTimeout)
}

// FromContext converts a context error into the matching cancellation error.
// context.DeadlineExceeded maps to ErrorTypeTimeout, context.Canceled to
// ErrorTypeCancelled. Other errors pass through unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrorTypeTimeout, "operation timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrorTypeCancelled, "operation cancelled")
	default:
		return err
	}
}

// FromKind reconstructs a typed error from its serialized kind and message.
// Used on the receiving side of a cross-boundary response, where only the
// (kind, message) pair travels over the channel.
func FromKind(kind, message string) *Error {
	t := ErrorType(kind)
	switch t {
	case ErrorTypeParse, ErrorTypeConfig, ErrorTypeSizeLimit,
		ErrorTypeCancelled, ErrorTypeTimeout, ErrorTypeCapability,
		ErrorTypeTransport:
		return New(t, message)
	default:
		return New(ErrorTypeInternal, message)
	}
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
