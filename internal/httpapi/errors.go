package httpapi

import (
	"errors"
	"net/http"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/calls"
	"soapbox/internal/campaigns"
	"soapbox/internal/identity"
	"soapbox/internal/regions"
	"soapbox/internal/reporting"
	"soapbox/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusOf maps service errors to HTTP statuses. Order matters: target and
// reference errors wrap NotFound/PermissionDenied and must win over them.
func statusOf(err error) int {
	switch {
	case errors.Is(err, calls.ErrInvalidCallTarget),
		errors.Is(err, campaigns.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, access.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, access.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrDuplicateUsername),
		errors.Is(err, identity.ErrDuplicateURL),
		errors.Is(err, calls.ErrDuplicateNumber),
		errors.Is(err, regions.ErrDuplicatePrefix),
		errors.Is(err, identity.ErrInvariantViolation),
		errors.Is(err, calls.ErrNumberUnavailable),
		errors.Is(err, calls.ErrNumberInUse),
		errors.Is(err, calls.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, calls.ErrCallLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, identity.ErrInvalidArgument),
		errors.Is(err, campaigns.ErrInvalidArgument),
		errors.Is(err, campaigns.ErrNotShareable),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, regions.ErrInvalidArgument),
		errors.Is(err, access.ErrInvalidGrant),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, audit.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
