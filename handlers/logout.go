package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
)

// logoutRequest: the refresh token is optional, a session-cookie-only
// logout is valid.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout tears down the browser session, revokes the presented refresh
// token and blacklists the current access token for its remaining life.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	if sessionID, err := c.Cookie(sessionCookie); err == nil && sessionID != "" {
		if err := h.sessionsSvc.Delete(c.Request.Context(), sessionID); err != nil {
			logger.Warnf("logout: deleting session: %v", err)
		}
	}
	clearSessionCookie(c, h.cfg.Cookies)

	if req.RefreshToken != "" && h.refreshSvc != nil {
		if err := h.refreshSvc.Delete(c.Request.Context(), req.RefreshToken); err != nil {
			logger.Warnf("logout: deleting refresh token: %v", err)
		}
	}

	// blacklist the bearer access token, if one was sent, for the short
	// window it would otherwise stay valid
	if auth := c.GetHeader("Authorization"); auth != "" {
		var at string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &at); n == 1 {
			if exp, err := parseExpFromJWT(at); err == nil {
				if ttl := time.Until(exp); ttl > 0 {
					if err := sessions.BlacklistAccessToken(c.Request.Context(), at, ttl); err != nil {
						logger.Warnf("logout: blacklisting access token: %v", err)
					}
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// parseExpFromJWT decodes the payload without verifying the signature and
// returns the exp claim. Good enough for computing a blacklist TTL.
func parseExpFromJWT(tok string) (time.Time, error) {
	parts := strings.Split(tok, ".")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid token")
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		Exp float64 `json:"exp"`
	}
	if err := json.Unmarshal(b, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	return time.Unix(int64(claims.Exp), 0), nil
}
