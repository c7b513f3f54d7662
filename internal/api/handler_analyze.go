package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"reservation-backend/internal/analyzer"
)

type analyzeRequest struct {
	Transcript string `json:"transcript" binding:"required"`
}

// Analyze handles POST /analyze by forwarding the transcript upstream.
func (h *Handler) Analyze(c *gin.Context) {
	if h.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": analyzer.ErrDisabled.Error()})
		return
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.analyzer.Analyze(ctx, req.Transcript)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("transcript analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error communicating with analyzer: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
