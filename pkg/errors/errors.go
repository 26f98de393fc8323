// Package errors provides structured error types for the repopulse
// application.
//
// Error codes classify failures along the refresh pipeline so that the
// publisher and the API layer can decide what is fatal, what degrades to
// stale data, and what is merely recorded as a diagnostic:
//   - FETCH_*: transport-level input failures, recovered per input
//   - MALFORMED_*: structural decode failures of one raw input
//   - RECONCILE_*: inconsistencies found while merging, never fatal
//   - NOT_READY / NOT_FOUND: reader-facing conditions
//   - INTERNAL_*: unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMalformedRepoData, "missing %%NAME%% in %s", member)
//	if errors.Is(err, errors.ErrCodeMalformedRepoData) {
//	    // exclude the record, keep the refresh going
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchFailed, origErr, "repository %s", repo)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input fetch errors
	ErrCodeFetchFailed Code = "FETCH_FAILED"
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Structural decode errors
	ErrCodeMalformedRepoData   Code = "MALFORMED_REPO_DATA"
	ErrCodeMalformedRecipeData Code = "MALFORMED_RECIPE_DATA"
	ErrCodeMalformedFeedData   Code = "MALFORMED_FEED_DATA"

	// Merge/derivation errors
	ErrCodeReconcileInconsistency Code = "RECONCILE_INCONSISTENCY"

	// Refresh lifecycle errors
	ErrCodeRefreshTimeout Code = "REFRESH_TIMEOUT"
	ErrCodeRefreshFailed  Code = "REFRESH_FAILED"
	ErrCodeNotReady       Code = "NOT_READY"

	// Reader-facing errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
