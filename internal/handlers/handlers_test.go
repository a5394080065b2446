package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"aigateway-go/internal/middleware"
	"aigateway-go/internal/models"
	"aigateway-go/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore stubs the slices of the backend the handlers touch.
type fakeStore struct {
	storage.Backend

	channels []models.Channel
	accounts map[int64]*models.Account
	users    map[int64]*models.User
	sessions map[string]*models.Session
	tokens   map[int64]*models.APIToken

	nextID        int64
	cacheSettings models.CacheSettings
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:      make(map[int64]*models.Account),
		users:         make(map[int64]*models.User),
		sessions:      make(map[string]*models.Session),
		tokens:        make(map[int64]*models.APIToken),
		nextID:        100,
		cacheSettings: models.DefaultCacheSettings(),
	}
}

func (s *fakeStore) ListChannels(_ context.Context, enabledOnly bool) ([]models.Channel, error) {
	if !enabledOnly {
		return s.channels, nil
	}
	var out []models.Channel
	for _, ch := range s.channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAccounts(_ context.Context, providerType string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range s.accounts {
		if providerType == "" || a.ProviderType == providerType {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAccount(_ context.Context, a *models.Account) error {
	s.nextID++
	a.ID = s.nextID
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *fakeStore) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, &storage.ErrNotFound{Key: "account"}
}

func (s *fakeStore) UpdateAccount(_ context.Context, a *models.Account) error {
	if _, ok := s.accounts[a.ID]; !ok {
		return &storage.ErrNotFound{Key: "account"}
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := s.accounts[id]; !ok {
		return &storage.ErrNotFound{Key: "account"}
	}
	delete(s.accounts, id)
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, &storage.ErrNotFound{Key: "user"}
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &storage.ErrNotFound{Key: email}
}

func (s *fakeStore) UpdateUser(_ context.Context, u *models.User) error {
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) CreateSession(_ context.Context, sess *models.Session) error {
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	if sess, ok := s.sessions[token]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, &storage.ErrNotFound{Key: "session"}
}

func (s *fakeStore) DeleteSession(_ context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

func (s *fakeStore) GetTokenByKey(_ context.Context, key string) (*models.APIToken, error) {
	for _, t := range s.tokens {
		if t.Key == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, &storage.ErrNotFound{Key: "token key"}
}

func (s *fakeStore) CreateToken(_ context.Context, t *models.APIToken) error {
	s.nextID++
	t.ID = s.nextID
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *fakeStore) CacheSettings(_ context.Context) (models.CacheSettings, error) {
	return s.cacheSettings, nil
}

func (s *fakeStore) UpdateCacheSettings(_ context.Context, settings models.CacheSettings) error {
	s.cacheSettings = settings
	return nil
}

func seedClientAuth(s *fakeStore) {
	s.users[7] = &models.User{ID: 7, Email: "dev@example.com", Role: models.RoleUser, Enabled: true, Quota: models.UnlimitedQuota}
	s.tokens[1] = &models.APIToken{
		ID: 1, UserID: 7, Key: "sk-test",
		Status: models.TokenStatusEnabled, ExpiredTime: models.NeverExpires, UnlimitedQuota: true,
	}
}

func TestListModelsFiltersByTokenAccess(t *testing.T) {
	store := newFakeStore()
	seedClientAuth(store)
	store.channels = []models.Channel{
		{ID: 1, Type: "openai", Models: []string{"gpt-4o", "gpt-4o-mini"}, Enabled: true},
		{ID: 2, Type: "claude", Models: []string{"claude-sonnet-4"}, Enabled: true},
		{ID: 3, Type: "gemini", Models: []string{"gemini-2.0-flash"}, Enabled: false},
	}
	store.tokens[1].ModelLimitsEnabled = true
	store.tokens[1].ModelLimits = "gpt-4o,claude-sonnet-4"

	api := NewAPI(nil, store)
	r := gin.New()
	r.GET("/v1/models", middleware.TokenAuth(store), api.ListModels)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := gjson.GetBytes(w.Body.Bytes(), "data.#.id")
	var ids []string
	for _, v := range data.Array() {
		ids = append(ids, v.String())
	}
	assert.Equal(t, []string{"claude-sonnet-4", "gpt-4o"}, ids)
}

func TestListModelsGeminiShape(t *testing.T) {
	store := newFakeStore()
	seedClientAuth(store)
	store.channels = []models.Channel{
		{ID: 1, Type: "gemini", Models: []string{"gemini-2.0-flash"}, Enabled: true},
	}

	api := NewAPI(nil, store)
	r := gin.New()
	r.GET("/v1beta/models", middleware.TokenAuth(store), api.ListModelsGemini)

	req := httptest.NewRequest(http.MethodGet, "/v1beta/models", nil)
	req.Header.Set("x-goog-api-key", "sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "models/gemini-2.0-flash",
		gjson.GetBytes(w.Body.Bytes(), "models.0.name").String())
}

func TestChatRejectsModelOutsideAllowlist(t *testing.T) {
	store := newFakeStore()
	seedClientAuth(store)
	store.tokens[1].ModelLimitsEnabled = true
	store.tokens[1].ModelLimits = "gpt-4o"

	api := NewAPI(nil, store)
	r := gin.New()
	r.POST("/v1/chat/completions", middleware.TokenAuth(store), api.Chat)

	body := []byte(`{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "model_forbidden", gjson.GetBytes(w.Body.Bytes(), "error.code").String())
}

func TestChatRequiresModel(t *testing.T) {
	store := newFakeStore()
	seedClientAuth(store)

	api := NewAPI(nil, store)
	r := gin.New()
	r.POST("/v1/chat/completions", middleware.TokenAuth(store), api.Chat)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		bytes.NewReader([]byte(`{"messages":[]}`)))
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func adminRouter(store *fakeStore) *gin.Engine {
	h := NewAdmin(store, nil, nil, nil, time.Hour)
	r := gin.New()
	r.POST("/admin/login", h.Login)

	authed := r.Group("/admin", middleware.SessionAuth(store))
	authed.GET("/accounts", h.ListAccounts)
	authed.POST("/accounts", h.CreateAccount)
	authed.PUT("/accounts/:id", h.UpdateAccount)
	authed.DELETE("/accounts/:id", h.DeleteAccount)
	authed.GET("/settings/cache", h.GetCacheSettings)
	authed.PUT("/settings/cache", h.UpdateCacheSettings)
	return r
}

func seedAdmin(t *testing.T, store *fakeStore) string {
	t.Helper()
	hash, err := models.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	store.users[1] = &models.User{
		ID: 1, Email: "ops@example.com", PasswordHash: hash,
		Role: models.RoleAdmin, Enabled: true, Quota: models.UnlimitedQuota,
	}
	store.sessions["sess-1"] = &models.Session{
		UserID: 1, Token: "sess-1", ExpiresAt: time.Now().Add(time.Hour),
	}
	return "sess-1"
}

func adminReq(method, path, sess string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if sess != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sess})
	}
	return req
}

func TestAdminLoginIssuesSession(t *testing.T) {
	store := newFakeStore()
	seedAdmin(t, store)
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPost, "/admin/login", "",
		[]byte(`{"email":"ops@example.com","password":"hunter2hunter2"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	token := gjson.GetBytes(w.Body.Bytes(), "token").String()
	require.NotEmpty(t, token)
	_, ok := store.sessions[token]
	assert.True(t, ok)

	// Wrong password stays out.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPost, "/admin/login", "",
		[]byte(`{"email":"ops@example.com","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAccountLifecycle(t *testing.T) {
	store := newFakeStore()
	sess := seedAdmin(t, store)
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPost, "/admin/accounts", sess,
		[]byte(`{"provider_type":"openai","name":"pool-1","api_key":"sk-upstream-secret-key","enabled":true}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	id := gjson.GetBytes(w.Body.Bytes(), "account.id").Int()
	require.NotZero(t, id)
	// The response never leaks the full key.
	assert.NotContains(t, w.Body.String(), "sk-upstream-secret-key")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodGet, "/admin/accounts", sess, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "accounts.#").Int())

	// Updating with the redacted key keeps the stored secret.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPut, "/admin/accounts/"+strconv.FormatInt(id, 10), sess,
		[]byte(`{"provider_type":"openai","name":"pool-1-renamed","api_key":"sk-upstr...","enabled":true}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sk-upstream-secret-key", store.accounts[id].APIKey)
	assert.Equal(t, "pool-1-renamed", store.accounts[id].Name)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodDelete, "/admin/accounts/"+strconv.FormatInt(id, 10), sess, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.accounts)
}

func TestAdminRequiresSession(t *testing.T) {
	store := newFakeStore()
	seedAdmin(t, store)
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodGet, "/admin/accounts", "", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateCacheSettingsValidates(t *testing.T) {
	store := newFakeStore()
	sess := seedAdmin(t, store)
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPut, "/admin/settings/cache", sess,
		[]byte(`{"prompt_cache_enabled":true,"context_compression_enabled":true,"context_compression_threshold":8000,"context_compression_target":9000}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, adminReq(http.MethodPut, "/admin/settings/cache", sess,
		[]byte(`{"prompt_cache_enabled":false,"context_compression_enabled":true,"context_compression_threshold":8000,"context_compression_target":4000}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.cacheSettings.PromptCacheEnabled)
	assert.True(t, store.cacheSettings.CompressionEnabled)
}
