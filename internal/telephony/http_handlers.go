package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"soapbox/internal/access"
	"soapbox/internal/calls"
	"soapbox/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallStateUpdater is the slice of calls.Service the status callback drives.
type CallStateUpdater interface {
	UpdateCallState(ctx context.Context, callID string, u calls.StateUpdate) (calls.Call, error)
}

// TwilioStatusHandler converts Twilio status callbacks into call state updates.
//
// The call id is part of the callback URL registered at dispatch time:
// {BaseURL}/webhooks/twilio/status/{call_id}.
type TwilioStatusHandler struct {
	Calls CallStateUpdater

	// AuthToken verifies X-Twilio-Signature. Empty disables verification (local only).
	AuthToken string
	// BaseURL is the public scheme://host Twilio calls; the signature covers the full URL.
	BaseURL string
}

func (h TwilioStatusHandler) publicURL(c *gin.Context) string {
	base := strings.TrimRight(h.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + c.Request.URL.RequestURI()
}

func (h TwilioStatusHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls service not configured"})
		return
	}

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if h.AuthToken != "" && !ValidSignature(h.AuthToken, h.publicURL(c), c.Request.PostForm, c.GetHeader(HeaderTwilioSignature)) {
		log.Warn("twilio signature rejected", "call_sid", form.CallSid)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	u, err := form.StateUpdate()
	if err != nil {
		log.Warn("twilio status unknown", "status", form.CallStatus)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callID := c.Param("call_id")
	_, err = h.Calls.UpdateCallState(c.Request.Context(), callID, u)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, calls.ErrInvalidTransition):
		// Twilio may deliver callbacks out of order; a late one is acknowledged and dropped.
		log.Info("twilio status ignored", "call_id", callID, "status", u.State, "err", err)
		c.Status(http.StatusNoContent)
	case errors.Is(err, access.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	default:
		log.Error("call state update failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
	}
}
