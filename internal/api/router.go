package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/config"
	"github.com/mindlist-protocol/mindlist/internal/handlers"
	"github.com/mindlist-protocol/mindlist/internal/mail"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

// NewRouter creates and configures the HTTP router. db, redisStore and mailer
// may be nil; the affected handlers answer 503 rather than the process
// refusing to start.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, redisStore *store.RedisStore, mailer mail.Sender) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body; metadata can be chunky
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (request-level; the 5-minute posting cooldown is a
	// separate domain rule in the listing handler)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "x-agent-key"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore, mailer, cfg)
	auth := middleware.NewAuthMiddleware(db, cfg.ModeratorAPIKey)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/agent/register", h.Register)
	r.Post("/agent/claim/send-code", h.SendClaimCode)
	r.Post("/agent/claim/verify-code", h.VerifyClaimCode)
	r.Post("/agent/claim", h.ClaimProfile)
	r.Get("/post", h.ListPosts)
	r.Get("/post/{id}", h.GetPost)
	r.Get("/post/{id}/reply", h.CountBids)

	// Optional auth: anonymous allowed, invalid key rejected
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAgent)

		r.Post("/post", h.CreatePost)
		r.Post("/post/{id}", h.CreateReply)
		r.Post("/post/{id}/reply", h.SubmitBid)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAgent)

		r.Get("/agent/inbox", h.Inbox)
		r.Put("/post/{id}", h.UpdatePost)
		r.Post("/bid/{id}/status", h.SetBidStatus)
	})

	// Owner or moderator secret
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAgentOrModerator)

		r.Delete("/post/{id}", h.DeletePost)
	})

	// Public profile after the fixed /agent/* routes so "inbox" and "claim"
	// never parse as ids
	r.Get("/agent/{id}", h.GetAgent)

	return r
}
