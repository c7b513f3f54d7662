package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"reservation-backend/internal/metrics"
	"reservation-backend/internal/notification"
	"reservation-backend/internal/store"
)

type upsertReservationRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number" binding:"required,max=64"`
	// TimeSlot is checked by the store so that a bad value reports the
	// time format error rather than a binding error.
	TimeSlot  string `json:"time_slot"`
	PartySize int    `json:"party_size" binding:"required,min=1"`
}

type phoneQuery struct {
	PhoneNumber string `form:"phone_number" binding:"required"`
}

// UpsertReservation handles POST /reservations.
func (h *Handler) UpsertReservation(c *gin.Context) {
	var req upsertReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	res, result, err := h.store.UpsertReservation(ctx, store.ReservationInput{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		TimeSlot:    req.TimeSlot,
		PartySize:   req.PartySize,
	})
	switch {
	case errors.Is(err, store.ErrInvalidTimeFormat):
		metrics.IncUpsert("invalid_time")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time slot format"})
		return
	case errors.Is(err, store.ErrSlotAlreadyBooked):
		metrics.IncUpsert("slot_taken")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Time slot is already booked"})
		return
	case err != nil:
		metrics.IncUpsert("error")
		log.Ctx(ctx).Error().Err(err).Msg("failed to store reservation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store reservation"})
		return
	}
	metrics.IncUpsert(string(result))

	message := "Reservation created successfully"
	kind := notification.EventCreated
	if result == store.ResultUpdated {
		message = "Reservation updated successfully"
		kind = notification.EventUpdated
	}
	if h.dispatcher != nil {
		h.dispatcher.Dispatch(notification.NewReservationEvent(kind, res))
	}

	c.JSON(http.StatusOK, gin.H{"message": message, "reservation": res})
}

// GetReservations handles GET /reservations. With phone_number it returns
// that contact's reservation, otherwise every reservation in slot order.
func (h *Handler) GetReservations(c *gin.Context) {
	ctx := c.Request.Context()

	if phone, ok := c.GetQuery("phone_number"); ok {
		res, err := h.store.GetReservation(ctx, phone)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No reservation found"})
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to look up reservation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up reservation"})
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	reservations, err := h.store.ListReservations(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list reservations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reservations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

// CheckIn handles GET /reservations/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	var q phoneQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	status, err := h.store.CheckIn(ctx, q.PhoneNumber, h.now())
	if err != nil {
		metrics.IncCheckIn("error")
		log.Ctx(ctx).Error().Err(err).Msg("check-in failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check-in failed"})
		return
	}
	metrics.IncCheckIn(string(status))

	if status == store.CheckInSeatReady {
		c.JSON(http.StatusOK, gin.H{"message": "Take a seat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "No reservation found"})
}
