package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// StoreUnavailable indicates the diagnostics database could not be opened
	StoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// SchemaMismatch indicates the database exists with an incompatible schema
	SchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
	// ServerUnavailable indicates an analysis server is not running or reachable
	ServerUnavailable ErrorCode = "SERVER_UNAVAILABLE"
	// ServerNotFound indicates no registry record exists for the project
	ServerNotFound ErrorCode = "SERVER_NOT_FOUND"
	// CollectionFailed indicates a background collection worker reported failure
	CollectionFailed ErrorCode = "COLLECTION_FAILED"
	// CollectionTimeout indicates a collection exceeded its staleness limit
	CollectionTimeout ErrorCode = "COLLECTION_TIMEOUT"
	// InvalidConfig indicates the configuration failed validation
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error is a typed error carrying a stable code, a message, and an
// optional cause. Codes are part of the CLI's machine-readable surface.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a typed error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the ErrorCode from err, or InternalError if err is not
// a typed error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return InternalError
}
