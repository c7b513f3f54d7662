package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// GetAvailableSlots handles GET /available-time-slots.
func (h *Handler) GetAvailableSlots(c *gin.Context) {
	ctx := c.Request.Context()
	slots, err := h.store.AvailableSlots(ctx, h.grid)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to compute available slots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list available time slots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available_time_slots": slots})
}

// GetBookedSlots handles GET /booked-time-slots.
func (h *Handler) GetBookedSlots(c *gin.Context) {
	ctx := c.Request.Context()
	slots, err := h.store.ListBookedSlots(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list booked slots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list booked time slots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booked_time_slots": slots})
}

// Healthz pings the database.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
