package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
)

const (
	sessionCookie         = "session_id"
	federationStateCookie = "federation_state"
)

func setSessionCookie(c *gin.Context, cookies config.CookieConfig, sessionID string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sessionID, int(ttl.Seconds()), "/", cookies.Domain, cookies.Secure, true)
}

func clearSessionCookie(c *gin.Context, cookies config.CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", cookies.Domain, cookies.Secure, true)
}

func setFederationStateCookie(c *gin.Context, cookies config.CookieConfig, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(federationStateCookie, value, int(ttl.Seconds()), "/", cookies.Domain, cookies.Secure, true)
}

func clearFederationStateCookie(c *gin.Context, cookies config.CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(federationStateCookie, "", -1, "/", cookies.Domain, cookies.Secure, true)
}
