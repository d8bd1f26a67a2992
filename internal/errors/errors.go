// Package errors provides structured error types for iohammer.
// All errors include a category, code, message, and retryable flag so the
// worker loop and startup path can classify failures consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryDevice   ErrorCategory = "DEVICE"
	ErrCategoryArtifact ErrorCategory = "ARTIFACT"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeInvalidTarget = "INVALID_TARGET"
	CodeInvalidValue  = "INVALID_VALUE"

	// Device codes
	CodeOpenFailed  = "OPEN_FAILED"
	CodeWriteFailed = "WRITE_FAILED"
	CodeSyncFailed  = "SYNC_FAILED"

	// Artifact codes
	CodeUploadFailed = "UPLOAD_FAILED"
	CodeSinkFailed   = "SINK_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// HammerError is the structured error type used throughout the system.
type HammerError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *HammerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *HammerError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *HammerError) Is(target error) bool {
	var t *HammerError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new HammerError.
func New(category ErrorCategory, code, message string) *HammerError {
	return &HammerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new HammerError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *HammerError {
	return &HammerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
// A retryable error means the current operation failed but the worker
// should proceed to its next ticket rather than abort the run.
func IsRetryable(err error) bool {
	var he *HammerError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a HammerError.
func GetCategory(err error) ErrorCategory {
	var he *HammerError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a HammerError.
func GetCode(err error) string {
	var he *HammerError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable.
// Per-write failures never terminate the run; startup and config failures do.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryDevice && code == CodeWriteFailed:
		return true
	case category == ErrCategoryDevice && code == CodeSyncFailed:
		return true
	case category == ErrCategoryArtifact && code == CodeUploadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigError(code, message string) *HammerError {
	return New(ErrCategoryConfig, code, message)
}

func NewDeviceError(code, message string, cause error) *HammerError {
	return Wrap(ErrCategoryDevice, code, message, cause)
}

func NewArtifactError(code, message string, cause error) *HammerError {
	return Wrap(ErrCategoryArtifact, code, message, cause)
}

func NewInternalError(message string, cause error) *HammerError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
