package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/clients"
	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/database"
	"github.com/notelab/notelab/backend/idp-service/internal/federation"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/oidc"
	"github.com/notelab/notelab/backend/idp-service/internal/refreshtokens"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/internal/tokens"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/middleware"
)

const (
	testUpstreamIssuer = "https://accounts.google.com"
	alicePassword      = "alice-password"
	bobPassword        = "bob-password"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixture wires the whole service against memory stores.
type fixture struct {
	router *gin.Engine
	cfg    *config.Config

	users      *users.Service
	sessions   *sessions.Service
	codes      *authcodes.Service
	codesRepo  *authcodes.MemoryRepository
	refresh    *refreshtokens.Service
	tokens     *tokens.Service
	identities federation.IdentityRepository

	alice *models.User
	bob   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Issuer: config.IssuerConfig{
			URL:             "http://localhost:5002",
			Secret:          "handler-test-secret-handler-test",
			AccessTokenTTL:  120 * time.Second,
			IDTokenTTL:      time.Hour,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			AuthCodeTTL:     10 * time.Minute,
			SessionTTL:      24 * time.Hour,
		},
		Upstream: config.UpstreamConfig{Provider: "google", Issuer: testUpstreamIssuer},
		Clients: []config.OAuthClient{
			{ID: "taskapp", Name: "Tasks", RedirectURIs: []string{"http://localhost:3001/callback", "http://localhost:3001/alt"}},
			{ID: "docsapp", Name: "Docs", RedirectURIs: []string{"http://localhost:3002/callback"}},
		},
	}

	usersSvc := users.NewService(users.NewMemoryRepository())
	sessionsSvc := sessions.NewService(sessions.NewMemoryRepository(), cfg.Issuer.SessionTTL)
	codesRepo := authcodes.NewMemoryRepository()
	codesSvc := authcodes.NewService(codesRepo, cfg.Issuer.AuthCodeTTL)
	refreshSvc := refreshtokens.NewService(refreshtokens.NewMemoryRepository(), cfg.Issuer.RefreshTokenTTL)
	tokensSvc := tokens.NewService(cfg)
	identities := federation.NewMemoryIdentityRepository()
	registry := clients.NewRegistry(cfg.Clients)
	uow := database.NewMemoryUnitOfWork()

	ctx := context.Background()
	alice, err := usersSvc.CreateLocal(ctx, "alice@example.com", "Alice Admin", alicePassword, models.RoleAdmin)
	require.NoError(t, err)
	bob, err := usersSvc.CreateLocal(ctx, "bob@example.com", "Bob User", bobPassword, models.RoleUser)
	require.NoError(t, err)

	verifier := oidc.NewMultiVerifier(tokensSvc, cfg.Upstream.Issuer)
	auth := middleware.AuthMiddleware(verifier, nil)

	r := gin.New()
	root := r.Group("/")
	NewAuthHandler(cfg, registry, usersSvc, sessionsSvc, codesSvc, refreshSvc).Register(root)
	NewTokenHandler(registry, usersSvc, codesSvc, refreshSvc, tokensSvc, uow).Register(root)
	NewUserInfoHandler(usersSvc, identities, cfg.Upstream.Provider).Register(root, auth)
	NewAPIHandler(usersSvc, sessionsSvc, refreshSvc, identities, cfg.Upstream.Provider).Register(root, auth)
	NewDiscoveryHandler(cfg.Issuer.URL).Register(root)

	return &fixture{
		router:     r,
		cfg:        cfg,
		users:      usersSvc,
		sessions:   sessionsSvc,
		codes:      codesSvc,
		codesRepo:  codesRepo,
		refresh:    refreshSvc,
		tokens:     tokensSvc,
		identities: identities,
		alice:      alice,
		bob:        bob,
	}
}

type reqOpt func(*http.Request)

func withCookie(name, value string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func withBearer(token string) reqOpt {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func (f *fixture) get(t *testing.T, path string, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postJSON(t *testing.T, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(http.MethodPost, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body: %s", w.Body.String())
	return m
}

// cookieValue digs a named cookie out of the recorded response; found is
// false when the response never set it.
func cookieValue(w *httptest.ResponseRecorder, name string) (value string, found bool, cookie *http.Cookie) {
	res := w.Result()
	for _, ck := range res.Cookies() {
		if ck.Name == name {
			return ck.Value, true, ck
		}
	}
	return "", false, nil
}

// login runs the credential POST and returns the session cookie and the
// authorization code embedded in the returned redirect URI.
func (f *fixture) login(t *testing.T, email, password, challenge string) (sessionID, code string) {
	t.Helper()
	w := f.postJSON(t, "/login", map[string]string{
		"email":                 email,
		"password":              password,
		"client_id":             "taskapp",
		"redirect_uri":          "http://localhost:3001/callback",
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
		"state":                 "st-1",
		"nonce":                 "non-1",
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	sessionID, ok, _ := cookieValue(w, sessionCookie)
	require.True(t, ok, "session cookie missing")

	body := decodeJSON(t, w)
	redirect, _ := body["redirect_uri"].(string)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	code = u.Query().Get("code")
	require.NotEmpty(t, code)
	return sessionID, code
}
