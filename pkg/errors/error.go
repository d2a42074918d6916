// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, missing data, type mismatches
//   - Cache errors (200-299): Missing days, expired TTL, coverage gaps, manifest failures
//   - Venue errors (500-599): Order execution and position management errors
//   - Concurrency errors (600-699): Barrier and lock faults on the replay clock path
//   - Corruption errors (700-799): Unreadable cache files, malformed manifests
//   - Provider errors (800-899): Market data fetching and parsing errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeDayNotCached, "day %s not cached for %s", day, symbol)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeManifestReadFailed, "failed to read manifest", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeDayNotCached) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// CoverageError reports why a cached day range failed validation. It carries
// the first offending calendar day so callers can refetch from that point.
type CoverageError struct {
	Symbol    string // Instrument whose coverage failed
	SeriesKey string // Series key (timeframe or "ticks")
	Day       string // First offending day, YYYY-MM-DD
	Reason    string // Human-readable reason
}

// NewCoverageError creates a new CoverageError.
func NewCoverageError(symbol, seriesKey, day, reason string) *CoverageError {
	return &CoverageError{
		Symbol:    symbol,
		SeriesKey: seriesKey,
		Day:       day,
		Reason:    reason,
	}
}

// NewCoverageErrorf creates a new CoverageError with a formatted reason.
func NewCoverageErrorf(symbol, seriesKey, day, format string, args ...any) *CoverageError {
	return &CoverageError{
		Symbol:    symbol,
		SeriesKey: seriesKey,
		Day:       day,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage invalid for %s/%s at %s: %s", e.Symbol, e.SeriesKey, e.Day, e.Reason)
}
