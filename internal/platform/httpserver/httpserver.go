package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
)

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Imports run remote fetches and a full verification.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
}

// Check is a named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves an aggregated JSON health report over checks.
func HealthHandler(checks ...Check) http.Handler {
	opts := []health.CheckerOption{
		health.WithCacheDuration(2 * time.Second),
		health.WithTimeout(5 * time.Second),
	}
	for _, c := range checks {
		opts = append(opts, health.WithCheck(health.Check{
			Name:  c.Name,
			Check: c.Probe,
		}))
	}
	return health.NewHandler(health.NewChecker(opts...))
}
