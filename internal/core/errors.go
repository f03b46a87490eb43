package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "series shorter than strategy warm-up"}
	ErrInvalidSeries    = &Error{Code: "INVALID_SERIES", Message: "bar timestamps must be strictly increasing"}

	// Collector errors
	ErrCollectorFailed = &Error{Code: "COLLECTOR_FAILED", Message: "collector failed"}
	ErrUnknownProvider = &Error{Code: "UNKNOWN_PROVIDER", Message: "unknown data provider"}
	ErrInvalidSymbol   = &Error{Code: "INVALID_SYMBOL", Message: "invalid instrument symbol"}

	// Strategy errors
	ErrInvalidParameters = &Error{Code: "INVALID_PARAMETERS", Message: "invalid strategy parameters"}
	ErrEmptyGrid         = &Error{Code: "EMPTY_GRID", Message: "parameter grid has no valid combination"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Storage errors
	ErrNotFound      = &Error{Code: "NOT_FOUND", Message: "object not found"}
	ErrStorageFailed = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}
)
