package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/auth"
	"soapbox/internal/calls"
	"soapbox/internal/campaigns"
	"soapbox/internal/identity"
	"soapbox/internal/rbac"
	"soapbox/internal/regions"
	"soapbox/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Identity  *identity.Service
	Campaigns *campaigns.Service
	Calls     *calls.Service
	Regions   *regions.Service
	Reporting *reporting.Service
	Audit     *audit.Service
}

func subject(c *gin.Context) access.Subject { return auth.SubjectFrom(c.Request.Context()) }

// GroupRoles backs rbac.RequireGroupRole with the request's subject.
func GroupRoles(c *gin.Context, groupID string) rbac.Roles {
	return subject(c).Groups[groupID]
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and issues a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(c, "username and password required")
		return
	}
	u, err := h.Identity.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), u.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token required")
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Users & groups ---

func (h Handlers) CreateUser(c *gin.Context) {
	var req identity.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	u, err := h.Identity.CreateUser(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type meResponse struct {
	User   identity.User          `json:"user"`
	Groups map[string][]rbac.Role `json:"groups"`
}

func (h Handlers) Me(c *gin.Context) {
	sub := subject(c)
	u, err := h.Identity.GetUser(c.Request.Context(), sub.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := meResponse{User: u, Groups: map[string][]rbac.Role{}}
	for g, roles := range sub.Groups {
		out.Groups[g] = roles.List()
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetUser(c *gin.Context) {
	u, err := h.Identity.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) CreateGroup(c *gin.Context) {
	var req identity.NewGroup
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	g, err := h.Identity.CreateGroup(c.Request.Context(), subject(c).UserID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h Handlers) GetGroup(c *gin.Context) {
	g, err := h.Identity.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type roleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h Handlers) AddRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	role, ok := rbac.ParseRole(req.Role)
	if !ok || req.UserID == "" {
		badRequest(c, "user_id and a valid role required")
		return
	}
	g, err := h.Identity.AddRole(c.Request.Context(), subject(c).UserID, c.Param("id"), req.UserID, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h Handlers) RemoveRole(c *gin.Context) {
	role, ok := rbac.ParseRole(c.Param("role"))
	if !ok {
		badRequest(c, "invalid role")
		return
	}
	g, err := h.Identity.RemoveRole(c.Request.Context(), subject(c).UserID, c.Param("id"), c.Param("user_id"), role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// --- Access ---

// CheckAccess answers whether the caller may view or edit an object.
// A hidden object is 404; a visible one answers allowed true or false.
func (h Handlers) CheckAccess(c *gin.Context) {
	action := access.ActionView
	if raw := c.Query("action"); raw != "" {
		a, ok := access.ParseAction(raw)
		if !ok {
			badRequest(c, "action must be view or edit")
			return
		}
		action = a
	}

	ctx, sub, id := c.Request.Context(), subject(c), c.Param("id")
	var err error
	switch kind := c.Param("kind"); kind {
	case "number":
		err = h.Calls.CheckNumber(ctx, sub, id, action)
	case "result":
		err = h.Calls.CheckResult(ctx, sub, id, action)
	default:
		k, ok := campaigns.ParseKind(kind)
		if !ok {
			badRequest(c, "unknown kind")
			return
		}
		err = h.Campaigns.Check(ctx, sub, k, id, action)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"allowed": true, "action": action})
	case statusOf(err) == http.StatusForbidden:
		c.JSON(http.StatusOK, gin.H{"allowed": false, "action": action})
	default:
		writeError(c, err)
	}
}
