package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"reservation-backend/config"
	"reservation-backend/internal/analyzer"
	"reservation-backend/internal/api"
	"reservation-backend/internal/db"
	"reservation-backend/internal/logging"
	"reservation-backend/internal/metrics"
	"reservation-backend/internal/notification"
	"reservation-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	logger.Info().Str("path", configPath).Msg("configuration loaded")

	if cfg.Metrics.Enabled {
		metrics.Register()
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	grid, err := cfg.Grid()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid slot grid")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, store.WithCheckInWindow(cfg.CheckInWindow()))

	opts := []api.Option{api.WithLocation(cfg.Reservations.Location)}

	var pool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions := &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions)
		pool.Start(ctx)
		opts = append(opts, api.WithDispatcher(pool), api.WithWebPush(webpushOptions))
		log.Info().Int("workers", cfg.WorkerPool.Size).Msg("staff push notifications enabled")
	} else {
		log.Warn().Msg("VAPID keys not configured; staff push notifications disabled")
	}

	if cfg.Analyzer.Enabled {
		opts = append(opts, api.WithAnalyzer(analyzer.NewClient(cfg.Analyzer)))
	}

	router := api.NewRouter(cfg, api.NewHandler(appStore, grid, opts...))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	log.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}

	cancel()
	if pool != nil {
		pool.Wait()
	}

	if err := db.Close(gormDB); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}

	log.Info().Msg("server gracefully stopped")
}
