package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/api"
	"github.com/MeiCorl/mall-relay/internal/auth"
	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/config"
	"github.com/MeiCorl/mall-relay/internal/relay"
	"github.com/MeiCorl/mall-relay/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	// Root context: cancelled on shutdown, stops the bus listener and
	// bounds broker operations started by live sessions
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize merchant directory (optional)
	var directory store.Directory
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresDirectory(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		directory = pg
		logger.Info().Msg("merchant directory: PostgreSQL")
	case cfg.SQLitePath != "" || cfg.IsDevelopment():
		sq, err := store.NewSQLiteDirectory(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		directory = sq
		logger.Info().Msg("merchant directory: SQLite")
	default:
		logger.Warn().Msg("no merchant directory configured, recipient checks disabled")
	}
	if directory != nil {
		defer directory.Close()
	}

	// Initialize broker
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://127.0.0.1:6379"
	}
	bk, err := broker.New(ctx, redisURL, broker.Options{
		MerchantNotifyTopic: cfg.MerchantNotifyTopic,
		MerchantQueue:       cfg.MerchantQueue,
		ConsumerNotifyTopic: cfg.ConsumerNotifyTopic,
		ConsumerQueue:       cfg.ConsumerQueue,
		OfflinePrefix:       cfg.OfflinePrefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer bk.Close()
	logger.Info().Msg("connected to Redis")

	// Relay core
	registry := relay.NewRegistry()
	verifier := auth.NewJWTVerifier(cfg.TokenSecret)
	hub := relay.NewHub(ctx, registry, bk, verifier, cfg.TokenCookie, cfg.SendTimeout, logger)

	// Exactly one bus listener per process
	listener := relay.NewListener(registry, bk, directory, cfg.PollInterval, logger)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("bus listener exited")
		}
	}()

	// Create router
	router := api.NewRouter(logger, hub, registry, bk, directory, cfg.RateLimitWhitelist)

	// Create server. No global read/write timeouts: they would sever
	// long-lived merchant sockets; socket writes carry their own deadline.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the listener after the server: no new frames arrive once the
	// sockets are gone
	cancel()
	select {
	case <-listenerDone:
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("relay stopped")
}
