package relay

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aigateway-go/internal/compressor"
	"aigateway-go/internal/distributor"
	"aigateway-go/internal/errors"
	"aigateway-go/internal/models"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/translator"
	"aigateway-go/internal/upstream"
	"aigateway-go/internal/usage"
)

// stubStore implements just the Backend slice the relay touches. Calling
// anything else panics through the embedded nil interface, which is what we
// want in a test.
type stubStore struct {
	storage.Backend

	accounts     []models.Account
	channels     []models.Channel
	settings     models.CacheSettings
	logs         []models.RequestLog
	channelCalls int
	tokenUsage   []int64 // quota, in, out per call
	userUsage    []int64
	accountGone  bool
	accountIn    int64
	accountOut   int64
}

func (s *stubStore) EnabledAccounts(ctx context.Context, providerType string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range s.accounts {
		if a.ProviderType == providerType && a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStore) ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error) {
	return s.channels, nil
}

func (s *stubStore) CacheSettings(ctx context.Context) (models.CacheSettings, error) {
	return s.settings, nil
}

func (s *stubStore) RecordChannelResult(ctx context.Context, id int64, failed bool, latencyMS int64) error {
	s.channelCalls++
	return nil
}

func (s *stubStore) InsertRequestLog(ctx context.Context, l *models.RequestLog) error {
	s.logs = append(s.logs, *l)
	return nil
}

func (s *stubStore) RecordTokenUsage(ctx context.Context, id, quotaDelta, in, out int64) error {
	s.tokenUsage = append(s.tokenUsage, quotaDelta, in, out)
	return nil
}

func (s *stubStore) RecordUserUsage(ctx context.Context, id, quotaDelta, in, out int64) error {
	s.userUsage = append(s.userUsage, quotaDelta, in, out)
	return nil
}

func (s *stubStore) RecordAccountUsage(ctx context.Context, id, usageDelta, in, out int64) error {
	if s.accountGone {
		return &storage.ErrNotFound{Key: "account"}
	}
	s.accountIn += in
	s.accountOut += out
	return nil
}

// fakeProvider replays a canned stream or fails a set number of times.
type fakeProvider struct {
	name       string
	format     translator.Format
	stream     string
	response   string
	failures   int
	failWith   *errors.APIError
	calls      int
	lastBody   []byte
	lastModel  string
	lastHeader http.Header
}

func (p *fakeProvider) Name() string                        { return p.name }
func (p *fakeProvider) Format() translator.Format           { return p.format }
func (p *fakeProvider) SupportsModel(model string) bool     { return true }
func (p *fakeProvider) Models(ctx context.Context, opts upstream.ChatOptions) ([]string, error) {
	return nil, nil
}

func (p *fakeProvider) Chat(ctx context.Context, model string, body []byte, opts upstream.ChatOptions) ([]byte, error) {
	p.calls++
	p.lastBody = body
	p.lastModel = model
	p.lastHeader = opts.Headers
	if p.calls <= p.failures {
		return nil, p.failWith
	}
	return []byte(p.response), nil
}

func (p *fakeProvider) ChatStream(ctx context.Context, model string, body []byte, opts upstream.ChatOptions) (io.ReadCloser, error) {
	p.calls++
	p.lastBody = body
	p.lastModel = model
	p.lastHeader = opts.Headers
	if p.calls <= p.failures {
		return nil, p.failWith
	}
	return io.NopCloser(strings.NewReader(p.stream)), nil
}

func newTestRelay(store *stubStore, providers ...upstream.Provider) *Relay {
	dist := distributor.New(store, nil)
	r := New(Services{
		Store:       store,
		Providers:   upstream.NewRegistry(providers...),
		Distributor: dist,
		Compressor:  compressor.New(compressor.Config{}, nil),
		Tracker:     usage.NewTracker(),
	})
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	r.rng = rand.New(rand.NewSource(1))
	return r
}

func claudeStream() string {
	return "event: message_start\n" +
		`data: {"type":"message_start","message":{"usage":{"input_tokens":12,"output_tokens":0}}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"
}

func testStore(providerType string) *stubStore {
	return &stubStore{
		accounts: []models.Account{
			{ID: 1, ProviderType: providerType, APIKey: "sk-up", Enabled: true},
		},
		channels: []models.Channel{
			{ID: 10, Name: "main", Type: providerType, Models: []string{"claude-3-5-sonnet"}, Priority: 1, Weight: 1, Enabled: true},
		},
		settings: models.DefaultCacheSettings(),
	}
}

func TestHandleStreamsAndAccounts(t *testing.T) {
	store := testStore("claude")
	provider := &fakeProvider{name: "claude", format: translator.FormatClaude, stream: claudeStream()}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info:  distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: true},
		Body:  []byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}],"stream":true}`),
		Token: &models.APIToken{ID: 5},
		User:  &models.User{ID: 7},
	})
	require.Nil(t, apiErr)

	body := rec.Body.String()
	assert.Contains(t, body, "message_start")
	assert.Contains(t, body, `"text":"Hello"`)
	assert.Contains(t, body, "message_stop")
	// upstream order preserved
	assert.Less(t, strings.Index(body, "message_start"), strings.Index(body, "message_stop"))

	require.Len(t, store.logs, 1)
	row := store.logs[0]
	assert.Equal(t, http.StatusOK, row.Status)
	assert.Equal(t, int64(12), row.InputTokens)
	assert.Equal(t, int64(7), row.OutputTokens)
	assert.Equal(t, int64(7), row.UserID)
	assert.Equal(t, "claude", row.ProviderType)

	// credential and user counters match the log row
	assert.Equal(t, int64(12), store.accountIn)
	assert.Equal(t, int64(7), store.accountOut)
	require.Len(t, store.tokenUsage, 3)
	assert.Equal(t, int64(12), store.tokenUsage[1])
	assert.Equal(t, int64(7), store.tokenUsage[2])
}

func TestHandleRetriesServerErrors(t *testing.T) {
	store := testStore("claude")
	provider := &fakeProvider{
		name:     "claude",
		format:   translator.FormatClaude,
		stream:   claudeStream(),
		failures: 1,
		failWith: errors.New(http.StatusInternalServerError, "server_error", "server_error", "boom"),
	}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: true},
		Body: []byte(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`),
	})

	// Only one channel exists, so the retry excludes it and the second pick
	// fails; the surfaced error is the upstream failure, not model_not_found.
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatus)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, http.StatusInternalServerError, store.logs[0].Status)
}

func TestHandleFailsOverWithinChannelPool(t *testing.T) {
	store := testStore("claude")
	store.channels = append(store.channels, models.Channel{
		ID: 11, Name: "backup", Type: "claude", Models: []string{"claude-3-5-sonnet"},
		Priority: 1, Weight: 1, Enabled: true,
	})
	provider := &fakeProvider{
		name:     "claude",
		format:   translator.FormatClaude,
		stream:   claudeStream(),
		failures: 1,
		failWith: errors.New(http.StatusBadGateway, "bad_gateway", "server_error", "upstream down"),
	}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: true},
		Body: []byte(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`),
	})
	require.Nil(t, apiErr)
	assert.Equal(t, 2, provider.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, http.StatusOK, store.logs[0].Status)
}

func TestHandleDoesNotRetryBadRequests(t *testing.T) {
	store := testStore("claude")
	provider := &fakeProvider{
		name:     "claude",
		format:   translator.FormatClaude,
		failures: 5,
		failWith: errors.New(http.StatusBadRequest, "invalid_request_error", "invalid_request_error", "bad body"),
	}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: true},
		Body: []byte(`{"messages":[],"stream":true}`),
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, 1, provider.calls)
}

func TestHandleNoChannelForModel(t *testing.T) {
	store := &stubStore{settings: models.DefaultCacheSettings()}
	r := newTestRelay(store, &fakeProvider{name: "claude", format: translator.FormatClaude})

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-9"},
		Body: []byte(`{"messages":[]}`),
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
	assert.Equal(t, "model_not_found", apiErr.Code)
}

func TestHandleTranslatesBetweenDialects(t *testing.T) {
	// openai client against a claude channel: the request body must arrive
	// in anthropic form and the stream must come back as openai chunks.
	store := testStore("claude")
	provider := &fakeProvider{name: "claude", format: translator.FormatClaude, stream: claudeStream()}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatOpenAI, Model: "claude-3-5-sonnet", Stream: true},
		Body: []byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"system","content":"S"},{"role":"user","content":"hi"}],"stream":true}`),
	})
	require.Nil(t, apiErr)

	sent := string(provider.lastBody)
	assert.Contains(t, sent, `"system"`)
	assert.NotContains(t, sent, `"role":"system"`)

	body := rec.Body.String()
	assert.Contains(t, body, `"chat.completion.chunk"`)
	assert.Contains(t, body, "[DONE]")
	assert.NotContains(t, body, "message_start")
}

func TestHandleUnaryResponse(t *testing.T) {
	store := testStore("claude")
	provider := &fakeProvider{
		name:   "claude",
		format: translator.FormatClaude,
		response: `{"id":"msg_1","type":"message","role":"assistant",` +
			`"content":[{"type":"text","text":"Hi"}],"stop_reason":"end_turn",` +
			`"usage":{"input_tokens":4,"output_tokens":2}}`,
	}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: false},
		Body: []byte(`{"messages":[{"role":"user","content":"hi"}]}`),
	})
	require.Nil(t, apiErr)
	assert.Contains(t, rec.Body.String(), `"stop_reason":"end_turn"`)
	require.Len(t, store.logs, 1)
	assert.Equal(t, int64(4), store.logs[0].InputTokens)
	assert.Equal(t, int64(2), store.logs[0].OutputTokens)
}

func TestFinalizeSkipsDeletedAccount(t *testing.T) {
	store := testStore("claude")
	store.accountGone = true
	provider := &fakeProvider{name: "claude", format: translator.FormatClaude, stream: claudeStream()}
	r := newTestRelay(store, provider)

	rec := httptest.NewRecorder()
	apiErr := r.Handle(context.Background(), rec, &Request{
		Info: distributor.RequestInfo{Format: translator.FormatClaude, Model: "claude-3-5-sonnet", Stream: true},
		Body: []byte(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`),
	})
	require.Nil(t, apiErr)
	// log row still written, account counters untouched
	require.Len(t, store.logs, 1)
	assert.Equal(t, int64(0), store.accountIn)
}

func TestFailureKindMapping(t *testing.T) {
	assert.Equal(t, failureKind(http.StatusTooManyRequests), failureKind(429))
	assert.NotEqual(t, failureKind(429), failureKind(401))
	assert.Equal(t, failureKind(500), failureKind(502))
}
