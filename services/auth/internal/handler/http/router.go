package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/accounts/pkg/health"
	"github.com/utafrali/accounts/pkg/middleware"
)

// RouterConfig collects the router's collaborators.
type RouterConfig struct {
	Sessions Sessions
	Health   *health.Handler
	Logger   *slog.Logger
	CORS     middleware.CORSConfig

	// CredentialLimiter throttles register and login per client IP. Nil
	// disables it.
	CredentialLimiter *middleware.RateLimiter
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("auth-service"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health", cfg.Health.ReadinessHandler())
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewAuthHandler(cfg.Sessions, logger)

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON(logger))

		r.Group(func(r chi.Router) {
			if cfg.CredentialLimiter != nil {
				r.Use(cfg.CredentialLimiter.Middleware(logger))
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Post("/validate", h.Validate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.TokenValidator(), logger))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/profile", h.GetProfile)
			r.Delete("/profile", h.DeleteAccount)
		})
	})

	return r
}
