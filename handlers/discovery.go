package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DiscoveryHandler serves the static OIDC discovery document.
type DiscoveryHandler struct {
	issuer string
}

func NewDiscoveryHandler(issuer string) *DiscoveryHandler {
	return &DiscoveryHandler{issuer: strings.TrimRight(issuer, "/")}
}

func (h *DiscoveryHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/.well-known/openid-configuration", h.Discovery)
}

func (h *DiscoveryHandler) Discovery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                h.issuer,
		"authorization_endpoint":                h.issuer + "/authorize",
		"token_endpoint":                        h.issuer + "/token",
		"userinfo_endpoint":                     h.issuer + "/userinfo",
		"end_session_endpoint":                  h.issuer + "/logout",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"scopes_supported":                      []string{"openid", "profile", "email"},
		"id_token_signing_alg_values_supported": []string{"HS256"},
		"subject_types_supported":               []string{"public"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}
