// Package exception provides the error type shared by every pipeline step.
// A BatchError records the module that failed, a short message, the wrapped cause
// and a Kind that classifies the failure for the orchestrator and the CLI.
package exception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindUnknown is used for errors that carry no classification.
	KindUnknown Kind = ""
	// KindUnavailable means none of the candidate locations for a period resolved.
	KindUnavailable Kind = "Unavailable"
	// KindSchemaInvalid means required columns are missing from a fetched table.
	KindSchemaInvalid Kind = "SchemaInvalid"
	// KindTransientFetch means a non-404 HTTP status, a timeout or a transport error.
	KindTransientFetch Kind = "TransientFetchError"
	// KindWarehouseOperation means a warehouse delete, append or count failed.
	KindWarehouseOperation Kind = "WarehouseOperationFailed"
	// KindTransformFailed means the external transform tool exited non-zero.
	KindTransformFailed Kind = "TransformFailed"
	// KindConfig means configuration or arguments are invalid.
	KindConfig Kind = "ConfigInvalid"
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindUnknown {
		return "Unknown"
	}
	return string(k)
}

// BatchError is the error type returned by pipeline components.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "archive", "loader", "transform").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// Kind classifies the failure.
	Kind Kind
	// StackTrace is the stack at construction time, for debugging.
	StackTrace string

	isRetryable bool
	isSkippable bool
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError creates a BatchError without a Kind.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewKindError creates a classified BatchError. Classified pipeline errors are
// never skippable; only transient fetch errors report themselves as retryable,
// and the pipeline still does not retry them.
func NewKindError(kind Kind, module, message string, originalErr error) *BatchError {
	be := NewBatchError(module, message, originalErr, false, kind == KindTransientFetch)
	be.Kind = kind
	return be
}

// NewBatchErrorf creates a BatchError using a format string.
// If the last argument is an error it becomes OriginalErr and is not formatted.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr, false, false)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// WithKind sets the kind and returns the error for chaining.
func (e *BatchError) WithKind(kind Kind) *BatchError {
	e.Kind = kind
	return e
}

// IsBatchError reports whether err is, or wraps, a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// KindOf returns the first non-empty Kind found in the error chain.
func KindOf(err error) Kind {
	for err != nil {
		if be, ok := err.(*BatchError); ok && be.Kind != KindUnknown {
			return be.Kind
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if k := KindOf(inner); k != KindUnknown {
					return k
				}
			}
			return KindUnknown
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTemporary reports whether err is a timeout, cancellation or network failure.
// A BatchError's retryable flag takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused")
}

// ExtractErrorMessage returns BatchError.Message when err is a BatchError and
// err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		return be.Message
	}
	return err.Error()
}
