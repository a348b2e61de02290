package httpapi

import (
	"context"
	"net/http"

	"soapbox/internal/access"
	"soapbox/internal/campaigns"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// kindOps are the per-kind service operations behind one resource path.
type kindOps[C, T any] struct {
	kind   campaigns.Kind
	create func(context.Context, access.Subject, campaigns.Placement, C) (T, error)
	get    func(context.Context, access.Subject, string) (T, error)
	update func(context.Context, access.Subject, string, string, C) (T, error)
	list   func(context.Context, access.Subject, campaigns.ListOptions) ([]T, error)
}

type nameField struct {
	Name string `json:"name"`
}

// registerKind mounts CRUD and lifecycle routes for one kind. Request bodies are
// flat: placement (or name) fields next to the kind's content fields.
func registerKind[C, T any](g *gin.RouterGroup, h Handlers, ops kindOps[C, T]) {
	g.POST("", func(c *gin.Context) {
		var p campaigns.Placement
		var content C
		if c.ShouldBindBodyWith(&p, binding.JSON) != nil || c.ShouldBindBodyWith(&content, binding.JSON) != nil {
			badRequest(c, "invalid json")
			return
		}
		out, err := ops.create(c.Request.Context(), subject(c), p, content)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	})

	g.GET("", func(c *gin.Context) {
		limit, ok := limitParam(c)
		if !ok {
			return
		}
		opts := campaigns.ListOptions{GroupID: c.Query("group_id"), OwnerID: c.Query("owner_id"), Limit: limit}
		out, err := ops.list(c.Request.Context(), subject(c), opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": out})
	})

	g.GET("/:id", func(c *gin.Context) {
		out, err := ops.get(c.Request.Context(), subject(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	g.PUT("/:id", func(c *gin.Context) {
		var n nameField
		var content C
		if c.ShouldBindBodyWith(&n, binding.JSON) != nil || c.ShouldBindBodyWith(&content, binding.JSON) != nil {
			badRequest(c, "invalid json")
			return
		}
		out, err := ops.update(c.Request.Context(), subject(c), c.Param("id"), n.Name, content)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	g.POST("/:id/deactivate", h.lifecycle(ops.kind, h.Campaigns.Deactivate))
	g.POST("/:id/restore", h.lifecycle(ops.kind, h.Campaigns.Restore))
	g.POST("/:id/transfer", h.transfer(ops.kind))
	g.GET("/:id/history", h.history(ops.kind))
	if ops.kind.Shareable() {
		g.POST("/:id/share", h.sharing(ops.kind, h.Campaigns.Share))
		g.POST("/:id/unshare", h.sharing(ops.kind, h.Campaigns.Unshare))
	}
}

func (h Handlers) lifecycle(kind campaigns.Kind, op func(context.Context, access.Subject, campaigns.Kind, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(c.Request.Context(), subject(c), kind, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type transferRequest struct {
	OwnerID string `json:"owner_id"`
	GroupID string `json:"group_id,omitempty"`
}

func (h Handlers) transfer(kind campaigns.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
		out, err := h.Campaigns.Transfer(c.Request.Context(), subject(c), kind, c.Param("id"), req.OwnerID, req.GroupID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h Handlers) sharing(kind campaigns.Kind, op func(context.Context, access.Subject, campaigns.Kind, string, access.Grant) (access.Sharing, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var g access.Grant
		if err := c.ShouldBindJSON(&g); err != nil {
			badRequest(c, "invalid json")
			return
		}
		out, err := op(c.Request.Context(), subject(c), kind, c.Param("id"), g)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// history lists audit events of an object the caller can view.
func (h Handlers) history(kind campaigns.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := c.Request.Context(), c.Param("id")
		if err := h.Campaigns.Check(ctx, subject(c), kind, id, access.ActionView); err != nil {
			writeError(c, err)
			return
		}
		events, err := h.Audit.History(ctx, string(kind), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": events})
	}
}
