package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notelab/notelab/backend/idp-service/internal/federation"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/refreshtokens"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/middleware"
)

// APIHandler is the small authenticated resource surface: profile, admin
// user listing, password management.
type APIHandler struct {
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	refreshSvc  *refreshtokens.Service
	identities  federation.IdentityRepository
	upstream    string
}

func NewAPIHandler(u *users.Service, s *sessions.Service, r *refreshtokens.Service, ids federation.IdentityRepository, upstreamProvider string) *APIHandler {
	return &APIHandler{usersSvc: u, sessionsSvc: s, refreshSvc: r, identities: ids, upstream: upstreamProvider}
}

func (h *APIHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	api := rg.Group("/api/v1", auth)
	api.GET("/me", h.Me)
	api.GET("/admin/users", h.AdminListUsers)
	api.POST("/account/password", h.SetPassword)
}

// currentUser resolves the bearer principal to a stored user and writes the
// failure response itself when it cannot.
func (h *APIHandler) currentUser(c *gin.Context) (*models.User, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	user, err := resolvePrincipalUser(c, h.usersSvc, h.identities, h.upstream, p)
	if err != nil {
		logger.Errorf("api: user resolution: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return user, true
}

func (h *APIHandler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminListUsers requires the admin role on the resolved local user.
func (h *APIHandler) AdminListUsers(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	list, err := h.usersSvc.List(c.Request.Context())
	if err != nil {
		logger.Errorf("api: user list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

type setPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// SetPassword sets or changes the local password, then bulk-invalidates
// every session and refresh token the user holds. Federated-only accounts
// gain a local password here.
func (h *APIHandler) SetPassword(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest("invalid_request", "password of at least 8 characters is required").JSON(c)
		return
	}

	if _, err := h.usersSvc.SetPassword(c.Request.Context(), user.ID, req.Password); err != nil {
		logger.Errorf("api: set password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if n, err := h.sessionsSvc.DeleteForUser(c.Request.Context(), user.ID); err != nil {
		logger.Warnf("api: session invalidation for %s: %v", user.ID, err)
	} else {
		logger.Infof("api: password change invalidated %d sessions for %s", n, user.ID)
	}
	if _, err := h.refreshSvc.DeleteForUser(c.Request.Context(), user.ID); err != nil {
		logger.Warnf("api: refresh token invalidation for %s: %v", user.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
