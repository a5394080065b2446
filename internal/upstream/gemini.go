package upstream

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/translator"
)

// GeminiProvider speaks Google's Generative Language API.
type GeminiProvider struct {
	baseURL string
	client  *http.Client
}

// NewGemini builds the Gemini adapter. An empty baseURL uses the public API.
func NewGemini(baseURL string, client *http.Client) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if client == nil {
		client = NewHTTPClient(nil, 0)
	}
	return &GeminiProvider{baseURL: baseURL, client: client}
}

func (p *GeminiProvider) Name() string              { return "gemini" }
func (p *GeminiProvider) Format() translator.Format { return translator.FormatGemini }

func (p *GeminiProvider) SupportsModel(model string) bool {
	return matchesAny(model, []string{"gemini", "imagen", "text-bison"})
}

func (p *GeminiProvider) headers(opts ChatOptions) http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", opts.APIKey)
	return mergeHeaders(h, opts.Headers)
}

func (p *GeminiProvider) httpClient(opts ChatOptions) *http.Client {
	if opts.Client != nil {
		return opts.Client
	}
	return p.client
}

func (p *GeminiProvider) generateURL(model string, stream bool) string {
	if stream {
		return p.baseURL + "/v1beta/models/" + model + ":streamGenerateContent?alt=sse"
	}
	return p.baseURL + "/v1beta/models/" + model + ":generateContent"
}

func (p *GeminiProvider) Chat(ctx context.Context, model string, body []byte, opts ChatOptions) ([]byte, error) {
	return sendJSON(ctx, p.httpClient(opts), http.MethodPost,
		p.generateURL(model, false), body, p.headers(opts))
}

func (p *GeminiProvider) ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error) {
	resp, err := send(ctx, p.httpClient(opts), http.MethodPost,
		p.generateURL(model, true), body, p.headers(opts))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *GeminiProvider) Models(ctx context.Context, opts ChatOptions) ([]string, error) {
	body, err := sendJSON(ctx, p.httpClient(opts), http.MethodGet,
		p.baseURL+"/v1beta/models", nil, p.headers(opts))
	if err != nil {
		return nil, err
	}
	var out []string
	gjson.GetBytes(body, "models").ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		name = strings.TrimPrefix(name, "models/")
		if name != "" {
			out = append(out, name)
		}
		return true
	})
	return out, nil
}
