package translator

import (
	"context"
	"fmt"
	"io"
	"sync"
)

type route struct {
	from, to Format
}

// Registry holds the translation functions between wire formats, keyed by
// the (from, to) pair. Missing routes mean pass-through.
type Registry struct {
	mu     sync.RWMutex
	routes map[route]TranslatorConfig
}

// NewRegistry constructs an empty translator registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[route]TranslatorConfig)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry the format packages register
// into from their init functions.
func Default() *Registry {
	return defaultRegistry
}

// Register stores transforms for a format pair. Nil fields in cfg leave any
// previously registered transform for that pair in place, so request,
// response, and stream translators can be registered separately.
func (r *Registry) Register(from, to Format, cfg TranslatorConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.routes[route{from, to}]
	if cfg.RequestTransform != nil {
		existing.RequestTransform = cfg.RequestTransform
	}
	if cfg.ResponseTransform != nil {
		existing.ResponseTransform = cfg.ResponseTransform
	}
	if cfg.StreamTransform != nil {
		existing.StreamTransform = cfg.StreamTransform
	}
	r.routes[route{from, to}] = existing
}

func (r *Registry) lookup(from, to Format) TranslatorConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes[route{from, to}]
}

// TranslateRequest converts a request payload between formats. Pairs with no
// registered translator pass the payload through unchanged.
func (r *Registry) TranslateRequest(from, to Format, model string, rawJSON []byte, stream bool) []byte {
	if fn := r.lookup(from, to).RequestTransform; fn != nil {
		return fn(model, rawJSON, stream)
	}
	return rawJSON
}

// TranslateResponse converts a non-streaming response between formats.
func (r *Registry) TranslateResponse(ctx context.Context, from, to Format, model string, responseBody []byte) ([]byte, error) {
	if fn := r.lookup(from, to).ResponseTransform; fn != nil {
		return fn(ctx, model, responseBody)
	}
	return responseBody, nil
}

// TranslateStream converts a streaming response between formats.
func (r *Registry) TranslateStream(ctx context.Context, from, to Format, model string, reader io.Reader) (io.Reader, error) {
	if fn := r.lookup(from, to).StreamTransform; fn != nil {
		return fn(ctx, model, reader)
	}
	return reader, nil
}

// HasRequestTransformer reports whether a request translator is registered.
func (r *Registry) HasRequestTransformer(from, to Format) bool {
	return r.lookup(from, to).RequestTransform != nil
}

// HasResponseTransformer reports whether a response translator is registered.
func (r *Registry) HasResponseTransformer(from, to Format) bool {
	return r.lookup(from, to).ResponseTransform != nil
}

// HasStreamTransformer reports whether a stream translator is registered.
func (r *Registry) HasStreamTransformer(from, to Format) bool {
	return r.lookup(from, to).StreamTransform != nil
}

// Register adds transforms to the default registry.
func Register(from, to Format, cfg TranslatorConfig) {
	defaultRegistry.Register(from, to, cfg)
}

// TranslateRequest uses the default registry.
func TranslateRequest(from, to Format, model string, rawJSON []byte, stream bool) []byte {
	return defaultRegistry.TranslateRequest(from, to, model, rawJSON, stream)
}

// TranslateResponse uses the default registry.
func TranslateResponse(ctx context.Context, from, to Format, model string, responseBody []byte) ([]byte, error) {
	return defaultRegistry.TranslateResponse(ctx, from, to, model, responseBody)
}

// TranslateStream uses the default registry.
func TranslateStream(ctx context.Context, from, to Format, model string, reader io.Reader) (io.Reader, error) {
	return defaultRegistry.TranslateStream(ctx, from, to, model, reader)
}

// FromString converts a string to Format.
func FromString(s string) Format {
	switch s {
	case "openai":
		return FormatOpenAI
	case "openai_responses":
		return FormatOpenAIResponses
	case "claude", "anthropic":
		return FormatClaude
	case "gemini":
		return FormatGemini
	case "glm":
		return FormatGLM
	default:
		return FormatGeneric
	}
}

// Normalize collapses format aliases onto the format whose translators apply.
// The Responses API carries chat-completions payload semantics, so it shares
// the openai translators; GLM is wire-compatible with openai apart from its
// streaming quirks, which have dedicated transforms.
func Normalize(f Format) Format {
	if f == FormatOpenAIResponses {
		return FormatOpenAI
	}
	return f
}

// String returns the string representation of a Format.
func (f Format) String() string {
	return string(f)
}

// ErrNoTranslator is returned when no translator is found.
type ErrNoTranslator struct {
	From Format
	To   Format
}

func (e *ErrNoTranslator) Error() string {
	return fmt.Sprintf("no translator found from %s to %s", e.From, e.To)
}
