package httpapi

import (
	"net/http"

	"soapbox/internal/regions"

	"github.com/gin-gonic/gin"
)

func (h Handlers) CreateRegion(c *gin.Context) {
	var req regions.NewRegion
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	r, err := h.Regions.CreateRegion(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h Handlers) ListRegions(c *gin.Context) {
	out, err := h.Regions.ListRegions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) GetRegion(c *gin.Context) {
	r, err := h.Regions.GetRegion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type rangeRequest struct {
	Prefix string `json:"prefix"`
}

func (h Handlers) AddRange(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	nr, err := h.Regions.AddRange(c.Request.Context(), c.Param("id"), req.Prefix)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, nr)
}

func (h Handlers) ListRanges(c *gin.Context) {
	out, err := h.Regions.ListRanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// ResolveRegion classifies ?number= by longest-prefix match. No match is a
// successful answer with matched=false.
func (h Handlers) ResolveRegion(c *gin.Context) {
	number := c.Query("number")
	if number == "" {
		badRequest(c, "number required")
		return
	}
	r, ok, err := h.Regions.Resolve(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "region": r})
}
