package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/lead-relay/internal/attach"
	"github.com/sungwon/lead-relay/internal/backup"
	"github.com/sungwon/lead-relay/internal/config"
	"github.com/sungwon/lead-relay/internal/provider"
)

// RouterConfig carries the collaborators the router wires together.
// Provider may be nil when required mail configuration is missing; the
// submission handler then answers with a config error.
type RouterConfig struct {
	Cfg       *config.Config
	Provider  provider.Provider
	Fetcher   *attach.Fetcher
	Forwarder *backup.Forwarder
	Log       zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(rc.Log))
	r.Use(RecoverMiddleware(rc.Log))
	r.Use(MetricsMiddleware)

	// Operational endpoints
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(rc.Provider))
	r.Handle("/metrics", promhttp.Handler())

	// Webhook endpoint (no auth - called by the form backend)
	r.Post("/webhooks/submission", SubmissionHandler(rc.Cfg, rc.Provider, rc.Fetcher, rc.Forwarder))

	return r
}
