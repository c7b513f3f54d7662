package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"reservation-backend/config"
	"reservation-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(), mw.Metrics(), mw.CORS(cfg.Server.CORSOrigins))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)

	// Slot listings are cached until the next successful write.
	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	responses := mw.NewResponseCache(cache.New(ttl, 2*ttl), ttl)
	caching := responses.Cache()
	invalidate := responses.InvalidateOnWrite()

	r.GET("/healthz", handler.Healthz)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	public := r.Group("/")
	public.Use(rateLimiter)
	{
		public.POST("/reservations", invalidate, handler.UpsertReservation)
		public.GET("/reservations", handler.GetReservations)
		public.GET("/reservations/check-in", handler.CheckIn)
		public.GET("/available-time-slots", caching, handler.GetAvailableSlots)
		public.GET("/booked-time-slots", caching, handler.GetBookedSlots)
		public.POST("/analyze", handler.Analyze)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
