// Command risk-server serves the rating transition hazard engine over HTTP:
// training, scoring, alerting, and backtesting endpoints plus health and
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ratingrisk/internal/config"
	apierrors "ratingrisk/internal/errors"
	"ratingrisk/internal/hazard"
	"ratingrisk/internal/histfile"
	"ratingrisk/internal/infrastructure"
	"ratingrisk/internal/services"
	transport "ratingrisk/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "risk-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	engineMetrics, err := infrastructure.CreateEngineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("creating metrics instruments: %w", err)
	}

	riskService := services.NewRiskService(cfg.FitConfig(), logger)
	riskService.SetMetrics(engineMetrics)
	backtestService := services.NewBacktestService(logger)
	backtestService.SetMetrics(engineMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pre-train from the configured history file when one is present, so
	// the server comes up ready. A missing file just means training waits
	// for the first POST /api/risk/train.
	if records, loadErr := loadHistory(cfg); loadErr != nil {
		logger.Warn("startup training skipped", "file", cfg.Data.HistoryFile, "error", loadErr)
	} else if _, trainErr := riskService.Train(ctx, records); trainErr != nil {
		logger.Warn("startup training failed", "file", cfg.Data.HistoryFile, "error", trainErr)
	}

	router := transport.NewRouter(transport.RouterDeps{
		Config:        cfg,
		Logger:        logger,
		RiskService:   riskService,
		BacktestSvc:   backtestService,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
		Metrics:       providers.PrometheusHTTP,
		EngineMetrics: engineMetrics,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
	return nil
}

// loadHistory reads the configured state-history file, picking the reader
// by extension.
func loadHistory(cfg *config.Config) ([]hazard.StateHistoryRecord, error) {
	path := cfg.Data.HistoryFile
	if path == "" {
		return nil, fmt.Errorf("no history file configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if isXLSX(path) {
		return histfile.LoadXLSX(path, cfg.Data.Sheet)
	}
	return histfile.LoadCSV(path)
}

func isXLSX(path string) bool {
	return len(path) > 5 && path[len(path)-5:] == ".xlsx"
}
