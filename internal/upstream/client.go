package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/errors"
)

// DefaultTimeout bounds non-streaming upstream calls. Streaming calls rely
// on the request context instead so long generations are not cut off.
const DefaultTimeout = 5 * time.Minute

const maxErrorBody = 1 << 16

// NewHTTPClient builds an upstream client, optionally routed through a
// proxy. Timeout zero means no client-level timeout.
func NewHTTPClient(proxy *url.URL, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// send issues the request and normalizes transport and HTTP failures into
// *errors.APIError. On success the caller owns the response body.
func send(ctx context.Context, client *http.Client, method, rawURL string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.New(http.StatusInternalServerError, "request_build_error", "server_error", err.Error())
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.MapNetworkError(err)
	}
	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"url":    req.URL.Host + req.URL.Path,
		}).Warn("Upstream error response")
		return nil, errors.MapHTTPError(resp.StatusCode, errBody)
	}
	return resp, nil
}

// sendJSON is send for non-streaming calls: it drains and returns the body.
func sendJSON(ctx context.Context, client *http.Client, method, rawURL string, body []byte, header http.Header) ([]byte, error) {
	resp, err := send(ctx, client, method, rawURL, body, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.MapNetworkError(err)
	}
	return out, nil
}

// mergeHeaders folds opts headers under the adapter's own, so auth headers
// set by the adapter are never clobbered by fingerprint profiles.
func mergeHeaders(base http.Header, extra http.Header) http.Header {
	out := make(http.Header, len(base)+len(extra))
	for k, vs := range extra {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
