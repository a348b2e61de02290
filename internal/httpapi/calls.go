package httpapi

import (
	"context"
	"net/http"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/calls"
	"soapbox/internal/reporting"

	"github.com/gin-gonic/gin"
)

// --- Numbers ---

func (h Handlers) CreateNumber(c *gin.Context) {
	var req calls.NewNumber
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	n, err := h.Calls.CreateNumber(c.Request.Context(), subject(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h Handlers) ListNumbers(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	out, err := h.Calls.ListNumbers(c.Request.Context(), subject(c), calls.ListOptions{GroupID: c.Query("group_id"), Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) GetNumber(c *gin.Context) {
	h.numberOp(c, h.Calls.GetNumber)
}

func (h Handlers) CheckoutNumber(c *gin.Context) {
	h.numberOp(c, h.Calls.CheckoutNumber)
}

func (h Handlers) CheckinNumber(c *gin.Context) {
	h.numberOp(c, h.Calls.CheckinNumber)
}

func (h Handlers) DeactivateNumber(c *gin.Context) {
	h.numberOp(c, h.Calls.DeactivateNumber)
}

func (h Handlers) RestoreNumber(c *gin.Context) {
	h.numberOp(c, h.Calls.RestoreNumber)
}

func (h Handlers) numberOp(c *gin.Context, op func(ctx context.Context, sub access.Subject, id string) (calls.Number, error)) {
	n, err := op(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h Handlers) TransferNumber(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	n, err := h.Calls.TransferNumber(c.Request.Context(), subject(c), c.Param("id"), req.OwnerID, req.GroupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// --- Calls ---

func (h Handlers) CreateCall(c *gin.Context) {
	var req calls.NewCall
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	call, err := h.Calls.CreateCall(c.Request.Context(), subject(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.GetCall(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) ListCampaignCalls(c *gin.Context) {
	out, err := h.Calls.ListCalls(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// --- Results ---

func (h Handlers) RecordResult(c *gin.Context) {
	var req calls.NewResult
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	r, err := h.Calls.RecordResult(c.Request.Context(), subject(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h Handlers) GetResult(c *gin.Context) {
	r, err := h.Calls.GetResult(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h Handlers) ListCampaignResults(c *gin.Context) {
	out, err := h.Calls.ListResults(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// --- Reports ---

func (h Handlers) CampaignSummary(c *gin.Context) {
	rng, ok := rangeParams(c)
	if !ok {
		return
	}
	out, err := h.Reporting.CampaignSummary(c.Request.Context(), subject(c), reporting.CampaignSummaryRequest{CampaignID: c.Param("id"), Range: rng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) QuestionTally(c *gin.Context) {
	out, err := h.Reporting.QuestionTally(c.Request.Context(), subject(c), c.Param("id"), c.Param("question_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func rangeParams(c *gin.Context) (reporting.TimeRange, bool) {
	var rng reporting.TimeRange
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, p.key+" must be an RFC3339 timestamp")
			return reporting.TimeRange{}, false
		}
		*p.dst = t
	}
	return rng, true
}
