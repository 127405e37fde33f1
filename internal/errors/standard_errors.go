// Package errors provides the standardized error taxonomy used across the
// Vault RPC surface: a single JSON envelope plus an HTTP status mapping, so
// every endpoint fails the same shape of error regardless of which layer
// raised it.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode is a semantic error code, stable across releases.
type ErrorCode string

const (
	// ValidationError — missing/malformed field, empty bulk payload, bad path.
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRequiredField   ErrorCode = "REQUIRED_FIELD"
	ErrorCodeInvalidFormat   ErrorCode = "INVALID_FORMAT"

	// DimensionMismatch — vector width != pinned vault dims.
	ErrorCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// Resource errors.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// System and processing errors.
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodePersistenceError   ErrorCode = "PERSISTENCE_ERROR"
	ErrorCodeRemoteError        ErrorCode = "REMOTE_ERROR"
)

// StandardError is the unified error envelope returned by every endpoint.
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
}

func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// ErrorDetails carries the machine-readable error body.
type ErrorDetails struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ValidationDetail describes which field failed validation and why.
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// NewValidationError creates a validation error with field details.
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeValidationError,
			Message: fmt.Sprintf("validation failed for field %q: %s", field, reason),
			Details: ValidationDetail{Field: field, Reason: reason, Value: value},
		},
	}
}

// NewRequiredFieldError creates an error for a missing required field.
func NewRequiredFieldError(field string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeRequiredField,
			Message: fmt.Sprintf("required field %q is missing", field),
			Details: ValidationDetail{Field: field, Reason: "missing_required_field"},
		},
	}
}

// NewDimensionMismatchError creates the DimensionMismatch error of §4.D's
// store protocol: writing into a vault with a populated, differently-sized
// index.
func NewDimensionMismatchError(vaultDims, gotDims int) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeDimensionMismatch,
			Message: fmt.Sprintf("vector has %d dims, vault is pinned to %d", gotDims, vaultDims),
			Details: map[string]int{"vault_dims": vaultDims, "vector_dims": gotDims},
		},
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(what string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{Code: ErrorCodeNotFound, Message: fmt.Sprintf("%s not found", what)},
	}
}

// NewPersistenceError wraps an underlying storage failure. Per §7, the
// in-memory state must not be mutated when this occurs.
func NewPersistenceError(op string, cause error) *StandardError {
	details := map[string]interface{}{"operation": op}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &StandardError{
		ErrorInfo: ErrorDetails{Code: ErrorCodePersistenceError, Message: "persistence operation failed", Details: details},
	}
}

// NewRemoteError wraps an embedding or replica call failure.
func NewRemoteError(what string, cause error) *StandardError {
	details := map[string]interface{}{"what": what}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &StandardError{
		ErrorInfo: ErrorDetails{Code: ErrorCodeRemoteError, Message: fmt.Sprintf("%s failed", what), Details: details},
	}
}

// NewInternalError creates an internal server error (the Fatal kind of §7).
func NewInternalError(message string, cause error) *StandardError {
	details := map[string]interface{}{"timestamp": time.Now().UTC().Format(time.RFC3339)}
	if cause != nil {
		details["original_error"] = cause.Error()
	}
	return &StandardError{
		ErrorInfo: ErrorDetails{Code: ErrorCodeInternalError, Message: message, Details: details},
	}
}

// WithTraceID attaches a trace ID for correlation with logs.
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// ToHTTPStatus maps a StandardError onto the HTTP status table of SPEC_FULL §7.
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidFormat, ErrorCodeDimensionMismatch:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTimeout:
		return http.StatusRequestTimeout
	case ErrorCodePersistenceError, ErrorCodeRemoteError, ErrorCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON renders the error as its wire form.
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes a StandardError as an HTTP response in the shared
// envelope shape.
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}
	w.WriteHeader(e.ToHTTPStatus())
	body, _ := e.ToJSON()
	_, _ = w.Write(body)
}

// Predefined common errors.
var (
	ErrQueryRequired   = NewRequiredFieldError("query")
	ErrContentRequired = NewRequiredFieldError("content")
	ErrRoleRequired    = NewRequiredFieldError("role")
)

// IsValidationError reports whether err is a validation-class StandardError.
func IsValidationError(err *StandardError) bool {
	switch err.ErrorInfo.Code {
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidFormat, ErrorCodeDimensionMismatch:
		return true
	}
	return false
}
