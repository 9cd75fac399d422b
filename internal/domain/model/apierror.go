package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Canonical error codes shared by every component on the write path.
const (
	CodeNoCredential = "NO_CREDENTIAL"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimit    = "RATE_LIMIT"
	CodeAPIError     = "REDTRACK_API_ERROR"
)

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrNoCredential = &APIError{Code: CodeNoCredential}
	ErrNotFound     = &APIError{Code: CodeNotFound}
	ErrUnauthorized = &APIError{Code: CodeUnauthorized}
	ErrRateLimit    = &APIError{Code: CodeRateLimit}
)

// APIError is the normalized shape of any upstream or write-path failure.
// StatusCode is 0 when no HTTP response was received.
type APIError struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *APIError with the same Code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// PermissionDenied reports whether the platform rejected the request with 403.
func (e *APIError) PermissionDenied() bool {
	return e != nil && e.StatusCode == http.StatusForbidden
}

// NewNoCredentialError is returned when no active, unexpired credential exists.
func NewNoCredentialError() *APIError {
	return &APIError{
		Code:    CodeNoCredential,
		Message: "no valid platform credential; capture a new session",
	}
}

// NewNotFoundError is returned when a domain is absent from the platform listing.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:       CodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NormalizeAPIError maps an upstream HTTP failure into an APIError.
// Provider-supplied code and message (or error) fields win over
// defaultMessage; 401, 404 and 429 override both.
func NormalizeAPIError(statusCode int, body []byte, defaultMessage string) *APIError {
	apiErr := &APIError{
		Code:       CodeAPIError,
		Message:    defaultMessage,
		StatusCode: statusCode,
	}

	if len(body) > 0 && json.Valid(body) {
		apiErr.Details = json.RawMessage(append([]byte(nil), body...))

		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err == nil {
			if msg := stringField(fields, "message"); msg != "" {
				apiErr.Message = msg
			} else if msg := stringField(fields, "error"); msg != "" {
				apiErr.Message = msg
			}
			if code := stringField(fields, "code"); code != "" {
				apiErr.Code = code
			}
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		apiErr.Code = CodeUnauthorized
		apiErr.Message = "Invalid API key or unauthorized access"
	case http.StatusTooManyRequests:
		apiErr.Code = CodeRateLimit
		apiErr.Message = "Rate limit exceeded. Please try again later"
	case http.StatusNotFound:
		apiErr.Code = CodeNotFound
		apiErr.Message = "Resource not found"
	}

	return apiErr
}

// NormalizeTransportError wraps a failure that produced no HTTP response
// (dial error, timeout, browser crash). An *APIError passes through untouched.
func NormalizeTransportError(err error, defaultMessage string) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	msg := defaultMessage
	if err != nil {
		msg = fmt.Sprintf("%s: %v", defaultMessage, err)
	}
	return &APIError{Code: CodeAPIError, Message: msg}
}

// stringField returns a string rendering of a scalar JSON field.
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
