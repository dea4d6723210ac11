// Package errors provides the structured API error shape rendered at the
// HTTP boundary. Every failure becomes a JSON response with a success flag,
// an error code, and a human-readable message; nothing propagates as
// process-fatal.
package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Success:    false,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// Predefined error responses for common cases
var (
	// ErrInvalidRequest is a malformed or undecodable request body
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

	// ErrServer hides store and internal faults behind a generic response
	ErrServer = New(http.StatusInternalServerError, "SERVER_ERROR", "Server error")
)

// MissingField creates a 400 response for an absent required field
func MissingField(field string) *APIError {
	return New(http.StatusBadRequest, "MISSING_PARAMETER", field+" is required")
}
