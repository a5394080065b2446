package upstream

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apierrors "aigateway-go/internal/errors"
)

func TestOpenAIChat(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, srv.Client())
	body, err := p.Chat(context.Background(), "gpt-4", []byte(`{"model":"gpt-4"}`), ChatOptions{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "hi", gjson.GetBytes(body, "choices.0.message.content").String())
}

func TestOpenAIModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"gpt-4"},{"id":"gpt-3.5-turbo"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, srv.Client())
	models, err := p.Models(context.Background(), ChatOptions{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4", "gpt-3.5-turbo"}, models)
}

func TestClaudeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		w.Write([]byte(`{"type":"message"}`))
	}))
	defer srv.Close()

	p := NewClaude(srv.URL, srv.Client())
	_, err := p.Chat(context.Background(), "claude-3-5-sonnet", []byte(`{}`), ChatOptions{APIKey: "sk-ant"})
	require.NoError(t, err)
}

func TestGeminiURLs(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		assert.Equal(t, "key-123", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewGemini(srv.URL, srv.Client())
	_, err := p.Chat(context.Background(), "gemini-2.0-flash", []byte(`{}`), ChatOptions{APIKey: "key-123"})
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotURL)

	stream, err := p.ChatStream(context.Background(), "gemini-2.0-flash", []byte(`{}`), ChatOptions{APIKey: "key-123"})
	require.NoError(t, err)
	stream.Close()
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse", gotURL)
}

func TestGeminiModelsStripPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"models/gemini-2.0-flash"},{"name":"models/gemini-1.5-pro"}]}`))
	}))
	defer srv.Close()

	p := NewGemini(srv.URL, srv.Client())
	models, err := p.Models(context.Background(), ChatOptions{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-pro"}, models)
}

func TestUpstreamErrorNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, srv.Client())
	_, err := p.Chat(context.Background(), "gpt-4", []byte(`{}`), ChatOptions{APIKey: "k"})
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, goerrors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus)
	assert.True(t, apiErr.IsRetryable())
}

func TestNetworkErrorNormalization(t *testing.T) {
	p := NewOpenAI("http://127.0.0.1:1", nil)
	_, err := p.Chat(context.Background(), "gpt-4", []byte(`{}`), ChatOptions{APIKey: "k"})
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, goerrors.As(err, &apiErr))
	assert.GreaterOrEqual(t, apiErr.HTTPStatus, 500)
}

func TestAdapterAuthWinsOverProfileHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer real-key", r.Header.Get("Authorization"))
		assert.Equal(t, "Mozilla/5.0 test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	profile := http.Header{}
	profile.Set("Authorization", "Bearer stale")
	profile.Set("User-Agent", "Mozilla/5.0 test")

	p := NewOpenAI(srv.URL, srv.Client())
	_, err := p.Chat(context.Background(), "gpt-4", []byte(`{}`), ChatOptions{APIKey: "real-key", Headers: profile})
	require.NoError(t, err)
}

func TestChatStreamPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"id\":\"1\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, srv.Client())
	stream, err := p.ChatStream(context.Background(), "gpt-4", []byte(`{"stream":true}`), ChatOptions{APIKey: "k"})
	require.NoError(t, err)
	defer stream.Close()

	raw, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[DONE]")
}

func TestSupportsModelStems(t *testing.T) {
	openai := NewOpenAI("", nil)
	assert.True(t, openai.SupportsModel("gpt-4o-mini"))
	assert.False(t, openai.SupportsModel("claude-3-haiku"))

	claude := NewClaude("", nil)
	assert.True(t, claude.SupportsModel("claude-3-5-sonnet-20240620"))

	glm := NewGLM("", nil)
	assert.True(t, glm.SupportsModel("glm-4-flash"))
	assert.False(t, glm.SupportsModel("gemini-2.0-flash"))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(NewOpenAI("", nil), NewClaude("", nil))
	require.NotNil(t, r.Get("openai"))
	require.NotNil(t, r.Get("claude"))
	assert.Nil(t, r.Get("kiro"))
	assert.Len(t, r.Names(), 2)
}

func TestGLMSummarizer(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"choices":[{"message":{"content":"the gist"}}]}`))
	}))
	defer srv.Close()

	s := NewGLMSummarizer(NewGLM(srv.URL, srv.Client()), "glm-key")
	out, err := s.Summarize(context.Background(), "please summarize this")
	require.NoError(t, err)
	assert.Equal(t, "the gist", out)

	req := gjson.ParseBytes(gotBody)
	assert.Equal(t, "glm-4-flash", req.Get("model").String())
	assert.InDelta(t, 0.3, req.Get("temperature").Float(), 1e-9)
	assert.Equal(t, int64(1000), req.Get("max_tokens").Int())
	assert.Equal(t, "please summarize this", req.Get("messages.0.content").String())
}

func TestGLMSummarizerEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	s := NewGLMSummarizer(NewGLM(srv.URL, srv.Client()), "glm-key")
	_, err := s.Summarize(context.Background(), "x")
	require.Error(t, err)
}
