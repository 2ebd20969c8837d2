// Package httptransport assembles the wallet's HTTP surface: the middleware
// chain, operational endpoints and the authenticated /v1 API.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certwallet/internal/platform/metrics"
	authmw "certwallet/pkg/platform/middleware/auth"
	"certwallet/pkg/platform/middleware/metadata"
	"certwallet/pkg/platform/middleware/request"
	"certwallet/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's endpoints.
type Registrar interface {
	Register(r chi.Router)
}

type Config struct {
	Logger *slog.Logger
	// Metrics is optional; without it no request metrics are recorded and
	// /metrics is not served.
	Metrics *metrics.Metrics
	// Validator guards /v1. Nil leaves the API unauthenticated.
	Validator   authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker
	// RateLimit runs after authentication so callers are keyed by subject.
	RateLimit func(http.Handler) http.Handler
	Health    http.Handler
	Features  []Registrar
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Health != nil {
		r.Handle("/healthz", cfg.Health)
	}

	r.Route("/v1", func(api chi.Router) {
		if cfg.Validator != nil {
			api.Use(authmw.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
		}
		if cfg.RateLimit != nil {
			api.Use(cfg.RateLimit)
		}
		for _, f := range cfg.Features {
			f.Register(api)
		}
	})
	return r
}
