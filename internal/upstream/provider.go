package upstream

import (
	"context"
	"io"
	"net/http"
	"strings"

	"aigateway-go/internal/translator"
)

// ChatOptions carries the per-call account context an adapter needs.
type ChatOptions struct {
	// APIKey authenticates against the provider.
	APIKey string
	// Client overrides the adapter's default HTTP client, typically to route
	// the call through an account-bound proxy.
	Client *http.Client
	// Headers are merged into the outbound request (fingerprint profile,
	// operator overrides). Authorization-style headers set by the adapter win.
	Headers http.Header

	// Kiro account context.
	AccountID       int64
	CredentialsJSON string
	MachineID       string
}

// Provider is one upstream LLM backend speaking its native wire format.
type Provider interface {
	// Name is the provider type string stored on channels and accounts.
	Name() string
	// Format is the wire format ChatStream and Chat speak.
	Format() translator.Format
	// SupportsModel reports whether the provider plausibly serves the model.
	SupportsModel(model string) bool
	// Chat issues a non-streaming call and returns the native response body.
	Chat(ctx context.Context, model string, body []byte, opts ChatOptions) ([]byte, error)
	// ChatStream issues a streaming call and returns the native SSE stream.
	ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error)
	// Models lists the models the provider reports as available.
	Models(ctx context.Context, opts ChatOptions) ([]string, error)
}

// Registry holds the configured provider adapters by type name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter for a provider type, nil when unknown.
func (r *Registry) Get(providerType string) Provider {
	return r.providers[providerType]
}

// Names lists the registered provider types.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// matchesAny does exact-then-prefix/substring matching against known model
// name stems, mirroring how channels match their model lists.
func matchesAny(model string, stems []string) bool {
	lower := strings.ToLower(model)
	for _, stem := range stems {
		if lower == stem {
			return true
		}
	}
	for _, stem := range stems {
		if strings.HasPrefix(lower, stem) || strings.Contains(lower, stem) {
			return true
		}
	}
	return false
}
