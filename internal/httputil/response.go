package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Machine-readable error codes
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeAlreadyVerified    = "ALREADY_VERIFIED"
	CodeCodeExpired        = "CODE_EXPIRED"
	CodeCodeMismatch       = "INVALID_CODE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeResetNotAuthorized = "RESET_NOT_AUTHORIZED"
	CodeRateLimited        = "CODE_RATE_LIMITED"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeMissingAuth        = "MISSING_AUTH"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error            string `json:"error"`
	Code             string `json:"code,omitempty"`
	Field            string `json:"field,omitempty"`
	RemainingSeconds int    `json:"remainingSeconds,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondError sends a JSON error response with the given message and status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// RespondErrorWithCode sends a JSON error response with a machine-readable error code.
func RespondErrorWithCode(w http.ResponseWriter, message string, code string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message, Code: code}, statusCode)
}

// RespondValidationError reports the first failing field of a request
func RespondValidationError(w http.ResponseWriter, field, message string) {
	RespondJSON(w, ErrorResponse{Error: message, Code: CodeValidationFailed, Field: field}, http.StatusBadRequest)
}

// RespondRateLimited sends 429 with Retry-After set to remainingSeconds
func RespondRateLimited(w http.ResponseWriter, message, code string, remainingSeconds int) {
	if remainingSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(remainingSeconds))
	}
	RespondJSON(w, ErrorResponse{Error: message, Code: code, RemainingSeconds: remainingSeconds}, http.StatusTooManyRequests)
}
