package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/clients"
	"github.com/notelab/notelab/backend/idp-service/internal/database"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/pkce"
	"github.com/notelab/notelab/backend/idp-service/internal/refreshtokens"
	"github.com/notelab/notelab/backend/idp-service/internal/tokens"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/metrics"
)

// TokenHandler redeems authorization codes and rotates refresh tokens.
type TokenHandler struct {
	registry   *clients.Registry
	usersSvc   *users.Service
	codesSvc   *authcodes.Service
	refreshSvc *refreshtokens.Service
	tokensSvc  *tokens.Service
	uow        database.UnitOfWork
}

func NewTokenHandler(reg *clients.Registry, u *users.Service, codes *authcodes.Service, refresh *refreshtokens.Service, tok *tokens.Service, uow database.UnitOfWork) *TokenHandler {
	return &TokenHandler{registry: reg, usersSvc: u, codesSvc: codes, refreshSvc: refresh, tokensSvc: tok, uow: uow}
}

func (h *TokenHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/token", h.Token)
	rg.POST("/token/refresh", h.TokenRefresh)
}

// tokenRequest accepts both urlencoded form and JSON bodies.
type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	Code         string `form:"code" json:"code"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
	ClientID     string `form:"client_id" json:"client_id"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Token dispatches on grant_type.
func (h *TokenHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest("invalid_request", "malformed request body").JSON(c)
		return
	}
	switch req.GrantType {
	case "authorization_code":
		h.redeemCode(c, req)
	case "refresh_token":
		h.rotateRefresh(c, req)
	default:
		badRequest("unsupported_grant_type", "").JSON(c)
	}
}

// TokenRefresh behaves exactly like grant_type=refresh_token; the alias
// exists so client code reads clearly.
func (h *TokenHandler) TokenRefresh(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest("invalid_request", "malformed request body").JSON(c)
		return
	}
	h.rotateRefresh(c, req)
}

func invalidGrant(c *gin.Context, reason, description string) {
	metrics.GrantFailures.WithLabelValues(reason).Inc()
	badRequest("invalid_grant", description).JSON(c)
}

// redeemCode burns the code first and validates after. The delete is the
// first transactional side effect, so among concurrent redemptions of the
// same value exactly one proceeds past this point; and because the burn is
// already committed, a PKCE or redirect mismatch cannot be retried against
// the same code.
func (h *TokenHandler) redeemCode(c *gin.Context, req tokenRequest) {
	if req.Code == "" || req.CodeVerifier == "" || req.ClientID == "" || req.RedirectURI == "" {
		badRequest("invalid_request", "code, code_verifier, client_id and redirect_uri are required").JSON(c)
		return
	}

	var code *authcodes.Code
	err := h.uow.WithTransaction(c.Request.Context(), func(ctx context.Context) error {
		var err error
		code, err = h.codesSvc.Consume(ctx, req.Code)
		return err
	})
	if err != nil {
		logger.Errorf("token: code consume: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if code == nil {
		invalidGrant(c, "code_unknown", "authorization code is invalid or has already been used")
		return
	}
	if time.Now().UTC().After(code.ExpiresAt) {
		invalidGrant(c, "code_expired", "authorization code has expired")
		return
	}
	if code.ClientID != req.ClientID {
		invalidGrant(c, "client_mismatch", "authorization code was issued to a different client")
		return
	}
	if code.RedirectURI != req.RedirectURI {
		invalidGrant(c, "redirect_mismatch", "redirect_uri does not match the authorization request")
		return
	}
	ok, err := pkce.Verify(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod)
	if err != nil || !ok {
		invalidGrant(c, "pkce_failed", "PKCE verification failed")
		return
	}

	user, err := h.usersSvc.GetByID(c.Request.Context(), code.UserID)
	if err != nil {
		logger.Errorf("token: user lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if user == nil {
		invalidGrant(c, "user_missing", "authorization code subject no longer exists")
		return
	}

	h.issueTriple(c, user, code.ClientID, code.Scope, code.Nonce)
}

// rotateRefresh deletes the presented token on match before validating, so
// a losing concurrent racer observes "not found" even when its request
// arrived after the winner rotated the value.
func (h *TokenHandler) rotateRefresh(c *gin.Context, req tokenRequest) {
	if req.RefreshToken == "" || req.ClientID == "" {
		badRequest("invalid_request", "refresh_token and client_id are required").JSON(c)
		return
	}

	var old *refreshtokens.Token
	err := h.uow.WithTransaction(c.Request.Context(), func(ctx context.Context) error {
		var err error
		old, err = h.refreshSvc.Consume(ctx, req.RefreshToken)
		return err
	})
	if err != nil {
		logger.Errorf("token: refresh consume: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if old == nil {
		invalidGrant(c, "refresh_unknown", "refresh token is invalid or has already been rotated")
		return
	}
	if time.Now().UTC().After(old.ExpiresAt) {
		invalidGrant(c, "refresh_expired", "refresh token has expired")
		return
	}
	if old.ClientID != req.ClientID {
		invalidGrant(c, "client_mismatch", "refresh token was issued to a different client")
		return
	}

	user, err := h.usersSvc.GetByID(c.Request.Context(), old.UserID)
	if err != nil {
		logger.Errorf("token: user lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if user == nil {
		invalidGrant(c, "user_missing", "refresh token subject no longer exists")
		return
	}

	// refresh records carry no scope; the rotated access token gets the
	// default grant
	h.issueTriple(c, user, old.ClientID, defaultScope, "")
}

// issueTriple mints the access/id/refresh set and persists the new refresh
// token. Persisting outside the consume transaction is fine: a fresh value
// has no reuse hazard at creation time.
func (h *TokenHandler) issueTriple(c *gin.Context, user *models.User, clientID, scope, nonce string) {
	access, err := h.tokensSvc.IssueAccessToken(user, clientID, scope)
	if err != nil {
		logger.Errorf("token: access issuance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	idToken, err := h.tokensSvc.IssueIDToken(user, clientID, nonce)
	if err != nil {
		logger.Errorf("token: id token issuance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	refresh, err := h.tokensSvc.NewRefreshToken()
	if err != nil {
		logger.Errorf("token: refresh generation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if _, err := h.refreshSvc.Store(c.Request.Context(), refresh, user.ID, clientID); err != nil {
		logger.Errorf("token: refresh persist: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	metrics.TokensIssued.WithLabelValues("access").Inc()
	metrics.TokensIssued.WithLabelValues("id").Inc()
	metrics.TokensIssued.WithLabelValues("refresh").Inc()

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    int(h.tokensSvc.AccessTokenTTL().Seconds()),
		"refresh_token": refresh,
		"id_token":      idToken,
	})
}
