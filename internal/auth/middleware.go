package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"soapbox/internal/access"
	"soapbox/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// SubjectResolver loads the current group roles of a user (identity.Service).
type SubjectResolver interface {
	Subject(ctx context.Context, userID string) (access.Subject, error)
}

// RequireAccessToken verifies an access token and injects the caller's subject into request context.
// It does not perform group role checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager, users SubjectResolver) gin.HandlerFunc {
	return bearer(m, users, true)
}

// OptionalAccessToken lets requests without a token through as the anonymous subject.
// A token that is present but invalid is still rejected.
func OptionalAccessToken(m *Manager, users SubjectResolver) gin.HandlerFunc {
	return bearer(m, users, false)
}

func bearer(m *Manager, users SubjectResolver, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			c.Request = c.Request.WithContext(WithSubject(c.Request.Context(), access.Anonymous()))
			c.Next()
			return
		}
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		sub, err := users.Subject(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, access.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				return
			}
			logger.FromGin(c).Error("subject lookup failed", "user_id", claims.UserID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity unavailable"})
			return
		}

		ctx := WithUserID(c.Request.Context(), claims.UserID)
		ctx = WithSubject(ctx, sub)
		ctx = logger.With(ctx, logger.From(ctx).With("user_id", claims.UserID))
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)

		c.Next()
	}
}
