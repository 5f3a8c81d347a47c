package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/federation"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/middleware"
)

// UserInfoHandler serves the OIDC userinfo endpoint for bearer tokens from
// either issuer.
type UserInfoHandler struct {
	usersSvc   *users.Service
	identities federation.IdentityRepository
	upstream   string
}

func NewUserInfoHandler(u *users.Service, ids federation.IdentityRepository, upstreamProvider string) *UserInfoHandler {
	return &UserInfoHandler{usersSvc: u, identities: ids, upstream: upstreamProvider}
}

func (h *UserInfoHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/userinfo", auth, h.UserInfo)
}

// UserInfo resolves the verified principal to a local user record. Local
// subjects are user ids; federated subjects resolve through their identity
// link, and an unlinked federated subject is indistinguishable from a bad
// token.
func (h *UserInfoHandler) UserInfo(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	user, err := resolvePrincipalUser(c, h.usersSvc, h.identities, h.upstream, p)
	if err != nil {
		logger.Errorf("userinfo: user resolution: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sub": user.ID, "email": user.Email, "name": user.Name})
}

// resolvePrincipalUser maps a verified principal to the stored user: by id
// for local tokens, through the (provider, subject) link for federated
// ones. Returns nil without error when no user matches.
func resolvePrincipalUser(c *gin.Context, usersSvc *users.Service, identities federation.IdentityRepository, upstream string, p *middleware.Principal) (*models.User, error) {
	ctx := c.Request.Context()
	if p.Provider == "federated" {
		link, err := identities.Get(ctx, upstream, p.Subject)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, nil
		}
		return usersSvc.GetByID(ctx, link.UserID)
	}
	return usersSvc.GetByID(ctx, p.Subject)
}
