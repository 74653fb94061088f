package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
	"ratingrisk/internal/infrastructure"
)

// BacktestService runs rolling-origin validations over record corpora
type BacktestService struct {
	logger  *slog.Logger
	metrics *infrastructure.EngineMetrics
}

// NewBacktestService creates a new backtest service
func NewBacktestService(logger *slog.Logger) *BacktestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BacktestService{
		logger: logger.With(slog.String("service", "backtest")),
	}
}

// SetMetrics attaches telemetry instruments; nil metrics are a no-op
func (s *BacktestService) SetMetrics(metrics *infrastructure.EngineMetrics) {
	s.metrics = metrics
}

// FoldsForCorpus generates rolling-origin folds spanning the corpus dates
func (s *BacktestService) FoldsForCorpus(records []hazard.StateHistoryRecord, trainDays, validationDays, testDays, stepDays int) ([]backtest.FoldSpec, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty record corpus")
	}

	first, last := records[0].Date, records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}

	day := 24 * time.Hour
	folds := backtest.RollingFolds(
		first,
		last.Add(day), // include the last observation date
		time.Duration(trainDays)*day,
		time.Duration(validationDays)*day,
		time.Duration(testDays)*day,
		time.Duration(stepDays)*day,
	)
	if len(folds) == 0 {
		return nil, fmt.Errorf("corpus span %s to %s too short for train=%dd validation=%dd test=%dd",
			first.Format("2006-01-02"), last.Format("2006-01-02"), trainDays, validationDays, testDays)
	}
	return folds, nil
}

// Run executes a backtest over the corpus
func (s *BacktestService) Run(ctx context.Context, records []hazard.StateHistoryRecord, cfg backtest.Config) (*backtest.Result, error) {
	start := time.Now()

	result, err := backtest.Run(ctx, records, cfg, s.logger)
	if err != nil {
		return nil, err
	}

	flagged := 0
	for _, fold := range result.Folds {
		if fold.StressFlagged {
			flagged++
		}
	}
	if s.metrics != nil {
		s.metrics.BacktestFoldsTotal.Add(ctx, int64(len(result.Folds)))
		s.metrics.BacktestDuration.Record(ctx, time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "backtest finished",
		"folds", len(result.Folds),
		"stress_flagged", flagged,
		"duration", time.Since(start).String(),
	)
	return result, nil
}
