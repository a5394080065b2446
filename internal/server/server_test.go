package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"aigateway-go/internal/config"
	"aigateway-go/internal/models"
	"aigateway-go/internal/storage"
)

type stubStore struct {
	storage.Backend

	healthErr error
}

func (s *stubStore) Health(context.Context) error { return s.healthErr }

func (s *stubStore) GetTokenByKey(_ context.Context, key string) (*models.APIToken, error) {
	if key != "sk-test" {
		return nil, &storage.ErrNotFound{Key: "token key"}
	}
	return &models.APIToken{
		ID: 1, UserID: 7, Key: key,
		Status: models.TokenStatusEnabled, ExpiredTime: models.NeverExpires,
		UnlimitedQuota: true, ModelLimitsEnabled: true, ModelLimits: "gpt-4o",
	}, nil
}

func (s *stubStore) GetUser(context.Context, int64) (*models.User, error) {
	return &models.User{ID: 7, Enabled: true, Quota: models.UnlimitedQuota}, nil
}

func (s *stubStore) ListChannels(context.Context, bool) ([]models.Channel, error) {
	return []models.Channel{{ID: 1, Type: "openai", Models: []string{"gpt-4o"}, Enabled: true}}, nil
}

func newTestServer(store storage.Backend, management bool) *Server {
	cfg := config.Default()
	cfg.Management.Enabled = management
	return New(Options{Config: cfg, Store: store})
}

func TestHealthz(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store, false)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	store.healthErr = errors.New("disk full")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestChatRequiresAuth(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		bytes.NewReader([]byte(`{"model":"gpt-4o"}`)))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGeminiPathRouting(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	// The token only allows gpt-4o, so a 403 naming the Gemini model proves
	// the wildcard route parsed the model out of the path.
	req := httptest.NewRequest(http.MethodPost,
		"/v1beta/models/gemini-2.0-flash:generateContent",
		bytes.NewReader([]byte(`{"contents":[{"parts":[{"text":"hi"}]}]}`)))
	req.Header.Set("x-goog-api-key", "sk-test")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, gjson.GetBytes(w.Body.Bytes(), "error.message").String(), "gemini-2.0-flash")
}

func TestModelsList(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-4o", gjson.GetBytes(w.Body.Bytes(), "data.0.id").String())
}

func TestManagementRoutesToggle(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(&stubStore{}, false).Handler().ServeHTTP(w,
		httptest.NewRequest(http.MethodPost, "/admin/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	newTestServer(&stubStore{}, true).Handler().ServeHTTP(w,
		httptest.NewRequest(http.MethodPost, "/admin/login", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
