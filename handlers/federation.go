package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/notelab/notelab/backend/idp-service/internal/clients"
	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/federation"
	"github.com/notelab/notelab/backend/idp-service/internal/pkce"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/metrics"
)

const federationStateTTL = 10 * time.Minute

// FederationHandler runs the two-leg upstream login flow. provider may be
// nil when upstream discovery failed at startup; every request then gets
// unsupported_provider.
type FederationHandler struct {
	cfg         *config.Config
	registry    *clients.Registry
	provider    *federation.Provider
	bridge      *federation.Bridge
	sessionsSvc *sessions.Service
}

func NewFederationHandler(cfg *config.Config, reg *clients.Registry, p *federation.Provider, b *federation.Bridge, s *sessions.Service) *FederationHandler {
	return &FederationHandler{cfg: cfg, registry: reg, provider: p, bridge: b, sessionsSvc: s}
}

func (h *FederationHandler) Register(rg *gin.RouterGroup) {
	f := rg.Group("/auth/federated")
	f.GET("/:provider/start", h.Start)
	f.GET("/:provider/callback", h.Callback)
}

func (h *FederationHandler) resolveProvider(c *gin.Context) bool {
	name := c.Param("provider")
	if h.provider == nil || name != h.provider.Name() {
		badRequest("unsupported_provider", "").JSON(c)
		return false
	}
	return true
}

// Start validates the local authorization request, stashes it with a fresh
// upstream PKCE verifier in a signed cookie and bounces to the upstream
// authorize URL.
func (h *FederationHandler) Start(c *gin.Context) {
	if !h.resolveProvider(c) {
		return
	}
	req := authRequestFromQuery(c)
	if _, oerr := validateAuthRequest(h.registry, req); oerr != nil {
		oerr.JSON(c)
		return
	}

	// separate PKCE pair for the upstream hop; the local challenge rides
	// along in the state blob untouched
	verifier, _ := pkce.GeneratePair()

	scope := req.Scope
	if scope == "" {
		scope = defaultScope
	}
	st := &federation.State{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ClientState:         req.State,
		Scope:               scope,
		Nonce:               req.Nonce,
		UpstreamVerifier:    verifier,
		RegisteredClaims:    jwt.RegisteredClaims{ID: uuid.NewString()},
	}
	blob, err := federation.EncodeState([]byte(h.cfg.Issuer.Secret), st, federationStateTTL)
	if err != nil {
		logger.Errorf("federation start: state encode: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	setFederationStateCookie(c, h.cfg.Cookies, blob, federationStateTTL)

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(st.ID, verifier))
}

// Callback finishes the flow: single-use state cookie, upstream code
// exchange and userinfo, then a local session and a local code for the
// original client.
func (h *FederationHandler) Callback(c *gin.Context) {
	if !h.resolveProvider(c) {
		return
	}

	blob, err := c.Cookie(federationStateCookie)
	if err != nil || blob == "" {
		badRequest("missing_federation_state", "").JSON(c)
		return
	}
	// single-use: gone before anything can fail
	clearFederationStateCookie(c, h.cfg.Cookies)

	st, err := federation.DecodeState([]byte(h.cfg.Issuer.Secret), blob)
	if err != nil {
		badRequest("invalid_request", "federation state is invalid or expired").JSON(c)
		return
	}
	if c.Query("state") != st.ID {
		badRequest("invalid_request", "state mismatch").JSON(c)
		return
	}

	if upstreamErr := c.Query("error"); upstreamErr != "" {
		metrics.Logins.WithLabelValues("federated", "failure").Inc()
		redirectWithError(c, st.RedirectURI, upstreamErr, c.Query("error_description"), st.ClientState)
		return
	}
	upstreamCode := c.Query("code")
	if upstreamCode == "" {
		badRequest("invalid_request", "code is required").JSON(c)
		return
	}

	res, err := h.bridge.Complete(c.Request.Context(), upstreamCode, st)
	if err != nil {
		metrics.Logins.WithLabelValues("federated", "failure").Inc()
		switch {
		case errors.Is(err, federation.ErrTokenExchange):
			logger.Errorf("federation callback: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token_exchange_failed"})
		case errors.Is(err, federation.ErrUserInfo):
			logger.Errorf("federation callback: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "userinfo_fetch_failed"})
		default:
			logger.Errorf("federation callback: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	setSessionCookie(c, h.cfg.Cookies, res.SessionID, h.sessionsSvc.TTL())
	metrics.Logins.WithLabelValues("federated", "success").Inc()
	c.Redirect(http.StatusFound, redirectURLWithCode(st.RedirectURI, res.Code.Code, st.ClientState))
}
