package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/api/middleware"
	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/handlers"
	"github.com/MeiCorl/mall-relay/internal/relay"
	"github.com/MeiCorl/mall-relay/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, hub *relay.Hub, registry *relay.Registry, b *broker.Broker, directory store.Directory, whitelist []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(4 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(b.Client(), logger, middleware.RateLimiterConfig{
		Whitelist: whitelist,
	})
	r.Use(limiter.Middleware)

	// CORS - merchant consoles connect from their own origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cookie"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(registry, b, directory)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Merchant socket endpoint; auth happens inside the handshake
	r.Get("/ws", hub.ServeWS)

	r.Get("/health", h.Health)
	r.Get("/presence/{id}", h.Presence)
	r.Get("/stats", h.Stats)

	return r
}
