package upstream

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/translator"
)

// openAICompat is the shared core for OpenAI-wire providers: bearer auth,
// /chat/completions, /models.
type openAICompat struct {
	name    string
	baseURL string
	format  translator.Format
	stems   []string
	client  *http.Client
}

func (p *openAICompat) Name() string              { return p.name }
func (p *openAICompat) Format() translator.Format { return p.format }

func (p *openAICompat) SupportsModel(model string) bool {
	return matchesAny(model, p.stems)
}

func (p *openAICompat) headers(opts ChatOptions) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+opts.APIKey)
	return mergeHeaders(h, opts.Headers)
}

func (p *openAICompat) httpClient(opts ChatOptions) *http.Client {
	if opts.Client != nil {
		return opts.Client
	}
	return p.client
}

func (p *openAICompat) Chat(ctx context.Context, model string, body []byte, opts ChatOptions) ([]byte, error) {
	return sendJSON(ctx, p.httpClient(opts), http.MethodPost,
		p.baseURL+"/chat/completions", body, p.headers(opts))
}

func (p *openAICompat) ChatStream(ctx context.Context, model string, body []byte, opts ChatOptions) (io.ReadCloser, error) {
	resp, err := send(ctx, p.httpClient(opts), http.MethodPost,
		p.baseURL+"/chat/completions", body, p.headers(opts))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *openAICompat) Models(ctx context.Context, opts ChatOptions) ([]string, error) {
	body, err := sendJSON(ctx, p.httpClient(opts), http.MethodGet,
		p.baseURL+"/models", nil, p.headers(opts))
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

// NewOpenAI builds the OpenAI adapter. An empty baseURL uses the public API.
func NewOpenAI(baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if client == nil {
		client = NewHTTPClient(nil, 0)
	}
	return &openAICompat{
		name:    "openai",
		baseURL: baseURL,
		format:  translator.FormatOpenAI,
		stems:   []string{"gpt-", "o1", "o3", "chatgpt", "text-embedding", "dall-e", "whisper"},
		client:  client,
	}
}

// NewGLM builds the Zhipu GLM adapter. GLM speaks the OpenAI wire format
// with reasoning_content deltas; the translator folds those into visible
// text on the way back to the client.
func NewGLM(baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = "https://open.bigmodel.cn/api/paas/v4"
	}
	if client == nil {
		client = NewHTTPClient(nil, 0)
	}
	return &openAICompat{
		name:    "glm",
		baseURL: baseURL,
		format:  translator.FormatGLM,
		stems:   []string{"glm-", "chatglm"},
		client:  client,
	}
}
