package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/metrics"
)

// loginPage is intentionally minimal: the relying parties own the real UI,
// this form only exists so the code flow works against a bare deployment.
var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<form method="post" action="/login" id="login">
  <input type="email" name="email" placeholder="email" required>
  <input type="password" name="password" placeholder="password" required>
  <input type="hidden" name="client_id" value="{{.ClientID}}">
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
  <input type="hidden" name="scope" value="{{.Scope}}">
  <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
  <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
  <input type="hidden" name="state" value="{{.State}}">
  <input type="hidden" name="nonce" value="{{.Nonce}}">
  <button type="submit">Sign in</button>
</form>
<p><a href="/auth/federated/google/start?client_id={{.ClientID}}&redirect_uri={{.RedirectURI}}&scope={{.Scope}}&code_challenge={{.CodeChallenge}}&code_challenge_method={{.CodeChallengeMethod}}&state={{.State}}">Sign in with Google</a></p>
</body>
</html>`))

// LoginForm renders the credential form with the forwarded authorization
// parameters as hidden fields.
func (h *AuthHandler) LoginForm(c *gin.Context) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(c.Writer, authRequestFromQuery(c)); err != nil {
		logger.Errorf("login form render: %v", err)
	}
}

// loginRequest is the POST body; the authorization parameters ride along so
// the handler can finish the original request.
type loginRequest struct {
	Email               string `form:"email" json:"email" binding:"required"`
	Password            string `form:"password" json:"password" binding:"required"`
	ClientID            string `form:"client_id" json:"client_id"`
	RedirectURI         string `form:"redirect_uri" json:"redirect_uri"`
	Scope               string `form:"scope" json:"scope"`
	CodeChallenge       string `form:"code_challenge" json:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method" json:"code_challenge_method"`
	State               string `form:"state" json:"state"`
	Nonce               string `form:"nonce" json:"nonce"`
}

// Login verifies the credentials, rotates the browser session and mints the
// authorization code for the request that sent the user here.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest("invalid_request", "email and password are required").JSON(c)
		return
	}
	_, oerr := h.validateAuthRequest(authRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		State:               req.State,
		Nonce:               req.Nonce,
	})
	if oerr != nil {
		oerr.JSON(c)
		return
	}

	user, err := h.usersSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			metrics.Logins.WithLabelValues("local", "failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		logger.Errorf("login: authenticate: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// session fixation defense: never adopt a session id the browser
	// already carries, delete it and issue a fresh one
	if old, err := c.Cookie(sessionCookie); err == nil && old != "" {
		if err := h.sessionsSvc.Delete(c.Request.Context(), old); err != nil {
			logger.Warnf("login: deleting presented session %s: %v", old, err)
		}
	}
	sessionID, err := h.sessionsSvc.Create(c.Request.Context(), user.ID)
	if err != nil {
		logger.Errorf("login: session create: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	setSessionCookie(c, h.cfg.Cookies, sessionID, h.sessionsSvc.TTL())

	scope := req.Scope
	if scope == "" {
		scope = defaultScope
	}
	code, err := h.codesSvc.Issue(c.Request.Context(), authcodes.Issuance{
		ClientID:            req.ClientID,
		UserID:              user.ID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scope:               scope,
		Nonce:               req.Nonce,
	})
	if err != nil {
		logger.Errorf("login: code issuance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	metrics.Logins.WithLabelValues("local", "success").Inc()
	c.JSON(http.StatusOK, gin.H{"redirect_uri": redirectURLWithCode(req.RedirectURI, code.Code, req.State)})
}
