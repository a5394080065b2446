package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// MapNetworkError turns a transport failure into an APIError. Typed checks
// come first; the string fallbacks cover errors the stdlib only exposes as
// text (TLS, DNS inside url.Error, proxy failures).
func MapNetworkError(err error) *APIError {
	msg := err.Error()

	if errors.Is(err, context.Canceled) {
		return New(http.StatusRequestTimeout, "request_canceled", "timeout_error", "Request was canceled: "+msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(http.StatusGatewayTimeout, "timeout", "timeout_error", "Request timeout: "+msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(http.StatusGatewayTimeout, "timeout", "timeout_error", "Request timeout: "+msg)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return New(http.StatusBadGateway, "dns_error", "server_error", "DNS resolution error: "+msg)
	}

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return New(http.StatusGatewayTimeout, "timeout", "timeout_error", "Request timeout: "+msg)
	case strings.Contains(msg, "connection refused"):
		return New(http.StatusBadGateway, "connection_error", "server_error", "Connection refused: "+msg)
	case strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset"):
		return New(http.StatusBadGateway, "connection_error", "server_error", "Connection error: "+msg)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return New(http.StatusBadGateway, "dns_error", "server_error", "DNS resolution error: "+msg)
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "tls"):
		return New(http.StatusBadGateway, "tls_error", "server_error", "TLS/Certificate error: "+msg)
	case strings.Contains(msg, "context canceled"):
		return New(http.StatusRequestTimeout, "request_canceled", "timeout_error", "Request was canceled: "+msg)
	default:
		return New(http.StatusBadGateway, "network_error", "server_error", "Network error: "+msg)
	}
}
