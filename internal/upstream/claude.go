package upstream

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/translator"
)

const anthropicVersion = "2023-06-01"

// ClaudeProvider speaks Anthropic's Messages API.
type ClaudeProvider struct {
	baseURL string
	client  *http.Client
}

// NewClaude builds the Anthropic adapter. An empty baseURL uses the public
// API.
func NewClaude(baseURL string, client *http.Client) *ClaudeProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if client == nil {
		client = NewHTTPClient(nil, 0)
	}
	return &ClaudeProvider{baseURL: baseURL, client: client}
}

func (p *ClaudeProvider) Name() string              { return "claude" }
func (p *ClaudeProvider) Format() translator.Format { return translator.FormatClaude }

func (p *ClaudeProvider) SupportsModel(model string) bool {
	return matchesAny(model, []string{"claude"})
}

func (p *ClaudeProvider) headers(opts ChatOptions) http.Header {
	h := http.Header{}
	h.Set("x-api-key", opts.APIKey)
	h.Set("anthropic-version", anthropicVersion)
	return mergeHeaders(h, opts.Headers)
}

func (p *ClaudeProvider) httpClient(opts ChatOptions) *http.Client {
	if opts.Client != nil {
		return opts.Client
	}
	return p.client
}

func (p *ClaudeProvider) Chat(ctx context.Context, model string, body []byte, opts ChatOptions) ([]byte, error) {
	return sendJSON(ctx, p.httpClient(opts), http.MethodPost,
		p.baseURL+"/v1/messages", body, p.headers(opts))
}

func (p *ClaudeProvider) ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error) {
	resp, err := send(ctx, p.httpClient(opts), http.MethodPost,
		p.baseURL+"/v1/messages", body, p.headers(opts))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *ClaudeProvider) Models(ctx context.Context, opts ChatOptions) ([]string, error) {
	body, err := sendJSON(ctx, p.httpClient(opts), http.MethodGet,
		p.baseURL+"/v1/models", nil, p.headers(opts))
	if err != nil {
		return nil, err
	}
	var out []string
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		if id := item.Get("id").String(); id != "" {
			out = append(out, id)
		}
		return true
	})
	return out, nil
}
