// Package http wires the service layer to its REST surface: chi routing,
// the middleware chain, request binding and validation, and RFC 7807 error
// responses.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ratingrisk/internal/config"
	apierrors "ratingrisk/internal/errors"
	"ratingrisk/internal/infrastructure"
	"ratingrisk/internal/middleware"
	"ratingrisk/internal/services"
)

// RouterDeps collects everything the router needs
type RouterDeps struct {
	Config       *config.Config
	Logger       *slog.Logger
	RiskService  *services.RiskService
	BacktestSvc  *services.BacktestService
	ErrorHandler *apierrors.ErrorHandler
	// Metrics serves the Prometheus scrape endpoint; nil disables it
	Metrics http.Handler
	// EngineMetrics, when set, records per-request instruments
	EngineMetrics *infrastructure.EngineMetrics
}

// NewRouter assembles the full HTTP router with the middleware chain
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.Compress(5))
	if deps.EngineMetrics != nil {
		r.Use(middleware.HTTPMetrics(deps.EngineMetrics))
	}
	r.Use(middleware.Timeout(deps.Config.Server.WriteTimeout, deps.Logger))

	if deps.Config.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			deps.Config.Server.RateLimit.RPS,
			deps.Config.Server.RateLimit.Burst,
			deps.Logger,
		)
		r.Use(limiter.Handler)
	}

	riskHandler := NewRiskHandler(deps.RiskService, deps.Logger, deps.ErrorHandler)
	backtestHandler := NewBacktestHandler(deps.BacktestSvc, deps.Config, deps.Logger, deps.ErrorHandler)
	healthHandler := NewHealthHandler(deps.RiskService, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/risk", riskHandler.Routes())
		r.Mount("/backtest", backtestHandler.Routes())
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.NotFound(deps.ErrorHandler.NotFound)
	r.MethodNotAllowed(deps.ErrorHandler.MethodNotAllowed)

	return r
}
