package errors

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// upstreamMessage pulls a human-readable message out of whatever error body
// the provider sent. All four dialects nest it under "error.message"; plain
// text bodies are passed through truncated.
func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	text := string(body)
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// MapHTTPError turns an upstream HTTP failure into an APIError, preferring
// the provider's own message over the generic one.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	code, errType, fallback := classifyStatus(statusCode)
	msg := upstreamMessage(upstreamBody)
	if msg == "" {
		msg = fallback
	}
	return New(statusCode, code, errType, msg)
}

func classifyStatus(statusCode int) (code, errType, fallback string) {
	switch statusCode {
	case http.StatusBadRequest:
		return "invalid_request_error", "invalid_request_error", "Invalid request"
	case http.StatusUnauthorized:
		return "invalid_api_key", "authentication_error", "Invalid authentication"
	case http.StatusForbidden:
		return "permission_denied", "permission_error", "Permission denied"
	case http.StatusNotFound:
		return "not_found", "invalid_request_error", "Resource not found"
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded", "rate_limit_error", "Rate limit exceeded"
	case http.StatusInternalServerError:
		return "server_error", "server_error", "Internal server error"
	case http.StatusBadGateway:
		return "bad_gateway", "server_error", "Bad gateway"
	case http.StatusServiceUnavailable:
		return "service_unavailable", "server_error", "Service temporarily unavailable"
	case http.StatusGatewayTimeout:
		return "timeout", "timeout_error", "Request timeout"
	default:
		return "unknown_error", "server_error", fmt.Sprintf("HTTP %d error", statusCode)
	}
}
