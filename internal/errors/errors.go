package errors

import (
	"fmt"
	"runtime"
)

// ErrorType classifies allocator failures
type ErrorType string

const (
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	ErrorTypeOutOfCapacity   ErrorType = "out_of_capacity"
	ErrorTypeTypeMismatch    ErrorType = "type_mismatch"
	ErrorTypeInvalidFree     ErrorType = "invalid_free"
	ErrorTypeStaleHandle     ErrorType = "stale_handle"
	ErrorTypeInvalidated     ErrorType = "invalidated"
)

// Sentinels for errors.Is. A StructuredError matches the sentinel of its Type.
var (
	ErrInvalidArgument = &StructuredError{Type: ErrorTypeInvalidArgument, Message: "invalid argument"}
	ErrOutOfCapacity   = &StructuredError{Type: ErrorTypeOutOfCapacity, Message: "out of capacity"}
	ErrTypeMismatch    = &StructuredError{Type: ErrorTypeTypeMismatch, Message: "type mismatch"}
	ErrInvalidFree     = &StructuredError{Type: ErrorTypeInvalidFree, Message: "invalid free"}
	ErrStaleHandle     = &StructuredError{Type: ErrorTypeStaleHandle, Message: "stale handle"}
	ErrInvalidated     = &StructuredError{Type: ErrorTypeInvalidated, Message: "backing memory invalidated"}
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	// Target names the arena or pool the operation ran against.
	Target  string
	Message string
	// Fatal marks contract violations that must reach the fatal policy.
	Fatal   bool
	Cause   error
	Context map[string]interface{}
	Stack   []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Type, e.Operation)
	if e.Target != "" {
		prefix += " '" + e.Target + "'"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StructuredError of the same Type.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// New creates a new structured error
func New(errType ErrorType, operation, target, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Target:    target,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Newf is New with a formatted message
func Newf(errType ErrorType, operation, target, format string, args ...interface{}) *StructuredError {
	return New(errType, operation, target, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, target, message string) *StructuredError {
	if err == nil {
		return nil
	}

	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Target:    target,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// AsFatal marks the error as a contract violation
func (e *StructuredError) AsFatal() *StructuredError {
	e.Fatal = true
	return e
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether err carries a fatal StructuredError anywhere in its chain.
func IsFatal(err error) bool {
	for err != nil {
		if se, ok := err.(*StructuredError); ok && se.Fatal {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// TypeOf returns the ErrorType of the first StructuredError in err's chain, or "".
func TypeOf(err error) ErrorType {
	for err != nil {
		if se, ok := err.(*StructuredError); ok {
			return se.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, this function and the constructor
	return pcs[:n]
}

// Common error constructors for frequent use cases

// NewInvalidArgument creates a recoverable invalid-argument error
func NewInvalidArgument(operation, target, message string) *StructuredError {
	return New(ErrorTypeInvalidArgument, operation, target, message)
}

// NewOutOfCapacity creates an out-of-capacity error. Arenas return it as a
// soft failure; pools mark it fatal.
func NewOutOfCapacity(operation, target, message string) *StructuredError {
	return New(ErrorTypeOutOfCapacity, operation, target, message)
}

// NewTypeMismatch creates a fatal type mismatch error
func NewTypeMismatch(operation, target, message string) *StructuredError {
	return New(ErrorTypeTypeMismatch, operation, target, message).AsFatal()
}

// NewInvalidFree creates a fatal invalid-free error
func NewInvalidFree(operation, target, message string) *StructuredError {
	return New(ErrorTypeInvalidFree, operation, target, message).AsFatal()
}

// NewStaleHandle creates a fatal stale-handle error
func NewStaleHandle(operation, target, message string) *StructuredError {
	return New(ErrorTypeStaleHandle, operation, target, message).AsFatal()
}

// NewInvalidated creates an error for use of memory whose parent was cleared or released
func NewInvalidated(operation, target, message string) *StructuredError {
	return New(ErrorTypeInvalidated, operation, target, message).AsFatal()
}
