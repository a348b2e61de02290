package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RolesLookup returns the roles the caller holds in groupID.
// The HTTP layer backs it with the request's access subject.
type RolesLookup func(c *gin.Context, groupID string) Roles

// RequireGroupRole allows the request if the caller holds any of the allowed
// roles in the group named by the path parameter param.
// Rules:
// - an anonymous or non-member caller gets 404, so group existence is not revealed
// - a member without an allowed role gets 403
func RequireGroupRole(param string, lookup RolesLookup, allowed ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param(param)
		if groupID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": param + " required"})
			return
		}
		held := lookup(c, groupID)
		if held.Empty() {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		for _, r := range allowed {
			if held.Has(r) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
