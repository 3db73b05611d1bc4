package api

import (
	"net/http"
	"time"

	"github.com/globetalk/matchmaking/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds what NewRouter needs besides the handlers.
type RouterConfig struct {
	Auth           func(http.Handler) http.Handler
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter configures all routes.
func NewRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and metrics (no auth required)
	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/match", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Post("/", h.Match)

		r.Route("/penpal", func(r chi.Router) {
			r.Post("/request", h.SendPenpalRequest)
			r.Post("/accept", h.AcceptPenpalRequest)
			r.Post("/decline", h.DeclinePenpalRequest)
			r.Get("/list", h.ListPenpals)
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/sent", h.ListSentRequests)
		})
	})

	return r
}
