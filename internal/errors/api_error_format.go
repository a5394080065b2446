package errors

import (
	"encoding/json"
	"net/http"
)

// New builds an APIError carrying both the HTTP status to reply with and the
// dialect-neutral code/type pair the formatters render from.
func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// ToJSON renders the error in the client's wire dialect. Unknown formats
// fall back to the OpenAI envelope.
func (e *APIError) ToJSON(format ErrorFormat) ([]byte, error) {
	switch format {
	case FormatClaude:
		body := ClaudeError{Type: "error"}
		body.Error.Type = e.Type
		body.Error.Message = e.Message
		return json.Marshal(body)

	case FormatGemini:
		body := GeminiError{}
		body.Error.Code = e.HTTPStatus
		body.Error.Message = e.Message
		body.Error.Status = grpcStatusName(e.HTTPStatus)
		body.Error.Details = e.Details
		return json.Marshal(body)

	default:
		body := OpenAIError{}
		body.Error.Message = e.Message
		body.Error.Type = e.Type
		body.Error.Code = e.Code
		body.Error.Details = e.Details
		return json.Marshal(body)
	}
}

var grpcStatusNames = map[int]string{
	http.StatusBadRequest:          "INVALID_ARGUMENT",
	http.StatusUnauthorized:        "UNAUTHENTICATED",
	http.StatusForbidden:           "PERMISSION_DENIED",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusTooManyRequests:     "RESOURCE_EXHAUSTED",
	http.StatusInternalServerError: "INTERNAL",
	http.StatusServiceUnavailable:  "UNAVAILABLE",
	http.StatusGatewayTimeout:      "DEADLINE_EXCEEDED",
}

// grpcStatusName maps an HTTP status to the gRPC-style status string the
// Gemini API puts in its error envelopes.
func grpcStatusName(httpStatus int) string {
	if name, ok := grpcStatusNames[httpStatus]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsRetryable reports whether a failover attempt against another account or
// channel could plausibly succeed.
func (e *APIError) IsRetryable() bool {
	switch e.HTTPStatus {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return true
	}
	switch e.Code {
	case "timeout", "connection_error", "network_error", "dns_error":
		return true
	}
	return false
}

// GetRetryAfter returns the suggested backoff in seconds, honoring an
// upstream retry_after hint when one was captured in Details.
func (e *APIError) GetRetryAfter() int {
	if e.Details != nil {
		switch v := e.Details["retry_after"].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	switch e.HTTPStatus {
	case http.StatusTooManyRequests:
		return 60
	case http.StatusServiceUnavailable:
		return 30
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return 15
	default:
		return 5
	}
}

// IsCritical marks errors that indicate a broken credential rather than a
// transient fault, so health tracking can act on the account itself.
func (e *APIError) IsCritical() bool {
	switch e.HTTPStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	switch e.Code {
	case "invalid_api_key", "permission_denied":
		return true
	}
	return false
}
