// Package core provides the API chassis for SkyGuard. It builds a chi router
// and enforces cross-cutting concerns (security headers, logging, metrics,
// authentication, rate limiting and error formatting) before requests reach
// the domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/config"
	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// RouteRegistrar mounts a group of handlers on the /v1 router.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies of the HTTP layer. Optional collaborators
// left nil disable the corresponding middleware.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Clock         types.Clock
	Metrics       MetricsCollector
	Authenticator Authenticator
	Auditor       AccessAuditor
	// APILimiter throttles authenticated callers across all endpoints.
	APILimiter   ratelimit.Limiter
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by cmd/api before MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	// Closers run on Shutdown in order (database pool, redis client).
	Closers []func()

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// The caller mounts routes after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Clock:     types.RealClock{},
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, c := range s.Closers {
		c()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

func (s *Server) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}
