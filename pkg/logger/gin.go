package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	// Twilio retries a webhook with the same token.
	headerTwilioIdempotency = "I-Twilio-Idempotency-Token"
)

// quietPaths are polled by infrastructure; their successful requests log at Debug.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// Middleware tags each request with a request_id logger (kept in the gin and request
// contexts) and writes one summary line per request, leveled by status.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		if tok := c.GetHeader(headerTwilioIdempotency); tok != "" {
			reqLogger = reqLogger.With("twilio_idempotency_token", tok)
		}
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", float64(time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		// Handlers may have enriched the request logger (user_id).
		log := FromGin(c)
		switch {
		case status >= http.StatusInternalServerError || len(c.Errors) > 0:
			log.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			log.Warn("request", attrs...)
		case quietPaths[path]:
			log.Debug("request", attrs...)
		default:
			log.Info("request", attrs...)
		}
	}
}

// FromGin returns the request-scoped logger. One stored on the request context
// (enriched with user_id by auth) takes precedence over the gin key.
func FromGin(c *gin.Context) *slog.Logger {
	if l, ok := c.Request.Context().Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
