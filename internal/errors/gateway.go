package errors

import "net/http"

// Gateway-level error constructors. These cover the failures the gateway
// itself produces, before or after talking to an upstream provider.

func ModelRequired() *APIError {
	return New(http.StatusBadRequest, "invalid_request_error", "invalid_request_error", "Model name is required")
}

func ModelNotFound(model string) *APIError {
	return New(http.StatusServiceUnavailable, "model_not_found", "invalid_request_error",
		"No available channel for model: "+model)
}

func NoAvailableAccount(channel string) *APIError {
	return New(http.StatusServiceUnavailable, "no_available_account", "server_error",
		"No healthy account available on channel: "+channel)
}

func InvalidAPIKey(message string) *APIError {
	return New(http.StatusUnauthorized, "invalid_api_key", "authentication_error", message)
}

func QuotaExceeded(message string) *APIError {
	return New(http.StatusForbidden, "quota_exceeded", "permission_error", message)
}

func RequestTooLarge(message string) *APIError {
	return New(http.StatusRequestEntityTooLarge, "request_too_large", "invalid_request_error", message)
}

func UpstreamTimeout(provider string) *APIError {
	return New(http.StatusGatewayTimeout, "timeout", "timeout_error",
		"Upstream request to "+provider+" timed out")
}
