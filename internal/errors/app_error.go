// Package errors defines the structured error type returned across the health
// recorder's HTTP boundary. Each AppError carries the status the route layer
// should answer with and a stable machine-readable code.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to clients.
const (
	CodeEmptyRecord        = "empty_record"
	CodeEmptyMessage       = "empty_message"
	CodeInvalidRequest     = "invalid_request"
	CodeStorageWriteFailed = "storage_write_failed"
	CodeStorageReadFailed  = "storage_read_failed"
	CodeGatewayFailed      = "gateway_failed"
	CodeInternal           = "internal_error"
)

// AppError represents a structured application error.
type AppError struct {
	// HTTPStatusCode is the HTTP status code to return.
	HTTPStatusCode int `json:"-"`
	// Code is an internal error code string.
	Code string `json:"code"`
	// Message is the user-facing error message.
	Message string `json:"message"`
	// Details provides additional error context (optional).
	Details map[string]interface{} `json:"details,omitempty"`
	// Err is the underlying error (not marshaled to JSON).
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON returns the JSON byte representation of the error.
func (e *AppError) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// WithDetail returns the error after attaching a detail entry.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		HTTPStatusCode: statusCode,
		Code:           code,
		Message:        message,
		Err:            err,
	}
}

// BadRequest reports invalid client input.
func BadRequest(code, message string) *AppError {
	return New(http.StatusBadRequest, code, message, nil)
}

// StorageWrite reports that a record could not be persisted. A failed write is
// never swallowed: the submitting request must fail loudly.
func StorageWrite(err error) *AppError {
	return New(http.StatusInternalServerError, CodeStorageWriteFailed, "failed to save health record", err)
}

// Internal wraps an unexpected failure.
func Internal(err error) *AppError {
	return New(http.StatusInternalServerError, CodeInternal, "internal server error", err)
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status associated with err, defaulting to 500.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.HTTPStatusCode != 0 {
		return appErr.HTTPStatusCode
	}
	return http.StatusInternalServerError
}
