package main

import (
	"net/http"

	"soapbox/internal/auth"
	"soapbox/internal/config"
	"soapbox/internal/httpapi"
	"soapbox/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, a *app, m *auth.Manager) {
	r.GET("/healthz", func(c *gin.Context) {
		if a.health != nil {
			if err := a.health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public, signed).
	status := telephony.TwilioStatusHandler{
		Calls:     a.Calls,
		AuthToken: cfg.Twilio.AuthToken,
		BaseURL:   cfg.Twilio.WebhookBaseURL,
	}
	r.POST("/webhooks/twilio/status/:call_id", status.HandleStatus)

	h := httpapi.Handlers{
		Auth:      m,
		Identity:  a.Identity,
		Campaigns: a.Campaigns,
		Calls:     a.Calls,
		Regions:   a.Regions,
		Reporting: a.Reporting,
		Audit:     a.Audit,
	}
	h.Register(r, auth.RequireAccessToken(m, a.Identity), auth.OptionalAccessToken(m, a.Identity))
}
