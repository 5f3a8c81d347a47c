package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/clients"
	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/pkce"
	"github.com/notelab/notelab/backend/idp-service/internal/refreshtokens"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
)

// defaultScope is granted when the client does not ask for one.
const defaultScope = "openid profile email"

// AuthHandler owns the authorization endpoint, the login form and logout.
type AuthHandler struct {
	cfg         *config.Config
	registry    *clients.Registry
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	codesSvc    *authcodes.Service
	refreshSvc  *refreshtokens.Service
}

func NewAuthHandler(cfg *config.Config, reg *clients.Registry, u *users.Service, s *sessions.Service, codes *authcodes.Service, refresh *refreshtokens.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, registry: reg, usersSvc: u, sessionsSvc: s, codesSvc: codes, refreshSvc: refresh}
}

func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/authorize", h.Authorize)
	rg.GET("/login", h.LoginForm)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
}

// authRequest carries the authorization parameters shared by /authorize,
// /login and the federation start leg.
type authRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Nonce               string
}

func authRequestFromQuery(c *gin.Context) authRequest {
	return authRequest{
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
		State:               c.Query("state"),
		Nonce:               c.Query("nonce"),
	}
}

// validateAuthRequest runs the shared precondition checks: params present,
// PKCE complete and S256, client known, redirect URI an exact member of the
// registered set. Returns the resolved client or the protocol error.
func (h *AuthHandler) validateAuthRequest(req authRequest) (*clients.Client, *oauthError) {
	return validateAuthRequest(h.registry, req)
}

func validateAuthRequest(registry *clients.Registry, req authRequest) (*clients.Client, *oauthError) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, badRequest("invalid_request", "client_id and redirect_uri are required")
	}
	if req.CodeChallenge == "" || req.CodeChallengeMethod != pkce.MethodS256 {
		return nil, badRequest("invalid_request", "PKCE required")
	}
	client := registry.Lookup(req.ClientID)
	if client == nil {
		return nil, badRequest("invalid_client", "unknown client")
	}
	if !client.RedirectURIAllowed(req.RedirectURI) {
		return nil, badRequest("invalid_redirect_uri", "redirect_uri is not registered for this client")
	}
	return client, nil
}

// Authorize is the front door of the code flow. With a live session it
// mints a code straight away; without one it either reports login_required
// (prompt=none) or forwards the whole request to the login form.
func (h *AuthHandler) Authorize(c *gin.Context) {
	req := authRequestFromQuery(c)

	if c.Query("response_type") != "code" {
		badRequest("invalid_request", "response_type must be \"code\"").JSON(c)
		return
	}
	if _, oerr := h.validateAuthRequest(req); oerr != nil {
		oerr.JSON(c)
		return
	}

	sessionID, _ := c.Cookie(sessionCookie)
	sess, err := h.sessionsSvc.Get(c.Request.Context(), sessionID)
	if err != nil {
		logger.Errorf("authorize: session lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	if sess != nil {
		scope := req.Scope
		if scope == "" {
			scope = defaultScope
		}
		code, err := h.codesSvc.Issue(c.Request.Context(), authcodes.Issuance{
			ClientID:            req.ClientID,
			UserID:              sess.UserID,
			RedirectURI:         req.RedirectURI,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			Scope:               scope,
			Nonce:               req.Nonce,
		})
		if err != nil {
			logger.Errorf("authorize: code issuance: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.Redirect(http.StatusFound, redirectURLWithCode(req.RedirectURI, code.Code, req.State))
		return
	}

	if c.Query("prompt") == "none" {
		// silent-auth contract: never show UI, report back via redirect
		redirectWithError(c, req.RedirectURI, "login_required", "", req.State)
		return
	}

	c.Redirect(http.StatusFound, "/login?"+loginForwardQuery(req).Encode())
}

// loginForwardQuery carries every original parameter to the login page so
// the login step can finish the same authorization request.
func loginForwardQuery(req authRequest) url.Values {
	params := url.Values{}
	params.Set("client_id", req.ClientID)
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("code_challenge", req.CodeChallenge)
	params.Set("code_challenge_method", req.CodeChallengeMethod)
	if req.Scope != "" {
		params.Set("scope", req.Scope)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	if req.Nonce != "" {
		params.Set("nonce", req.Nonce)
	}
	return params
}
