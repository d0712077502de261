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
	Profiles  Profiles
	Validator middleware.TokenValidator
	Health    *health.Handler
	Logger    *slog.Logger
	CORS      middleware.CORSConfig
}

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("user-service"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("user"))

	r.Get("/health", cfg.Health.ReadinessHandler())
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewProfileHandler(cfg.Profiles, logger)

	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Validator, logger))
		// Re-derive the request logger so it carries user_id.
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.ContentTypeJSON(logger))

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Delete("/profile", h.DeleteProfile)
	})

	return r
}
