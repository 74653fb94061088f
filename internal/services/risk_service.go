// Package services composes the hazard engine into application-facing
// operations: training a model bank from a record corpus, scoring entities
// and portfolios, raising alerts, and running backtests.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "ratingrisk/internal/errors"
	"ratingrisk/internal/hazard"
	"ratingrisk/internal/infrastructure"
)

// BankInfo describes the currently trained model bank
type BankInfo struct {
	BankID       string    `json:"bank_id"`
	TrainedAt    time.Time `json:"trained_at"`
	Episodes     int       `json:"n_episodes"`
	Entities     int       `json:"n_entities"`
	Covariates   []string  `json:"covariates"`
	Fitted       []string  `json:"fitted_transitions"`
	Unavailable  []string  `json:"unavailable_transitions,omitempty"`
	Insufficient []string  `json:"insufficient_entities,omitempty"`
}

// AlertSignal is the boolean-plus-value outcome of an alert check: the
// flag, the probability that triggered it, and the threshold it was
// compared against.
type AlertSignal struct {
	EntityID    string           `json:"entity_id"`
	Triggered   bool             `json:"triggered"`
	Overall     float64          `json:"overall_probability"`
	Threshold   float64          `json:"threshold"`
	Level       hazard.RiskLevel `json:"risk_level"`
	HorizonDays int              `json:"horizon_days"`
}

// RiskService trains and serves the transition-hazard model bank.
// Training replaces the bank atomically; scoring always reads a complete
// bank.
type RiskService struct {
	fitConfig hazard.FitConfig
	logger    *slog.Logger
	metrics   *infrastructure.EngineMetrics

	mu   sync.RWMutex
	bank *hazard.ModelBank
	info *BankInfo
}

// NewRiskService creates a new risk service
func NewRiskService(fitConfig hazard.FitConfig, logger *slog.Logger) *RiskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskService{
		fitConfig: fitConfig,
		logger:    logger.With(slog.String("service", "risk")),
	}
}

// SetMetrics attaches telemetry instruments; nil metrics are a no-op
func (s *RiskService) SetMetrics(metrics *infrastructure.EngineMetrics) {
	s.metrics = metrics
}

// Train builds episodes from the record corpus and fits a fresh model
// bank. The previous bank stays live until the new fit succeeds.
func (s *RiskService) Train(ctx context.Context, records []hazard.StateHistoryRecord) (*BankInfo, error) {
	start := time.Now()

	built, err := hazard.BuildEpisodes(ctx, records, s.logger)
	if err != nil {
		return nil, fmt.Errorf("building episodes: %w", err)
	}

	bank, err := hazard.FitBank(ctx, built.Episodes, s.fitConfig, s.logger)
	if err != nil {
		return nil, fmt.Errorf("fitting model bank: %w", err)
	}

	info := &BankInfo{
		BankID:       uuid.New().String(),
		TrainedAt:    time.Now().UTC(),
		Episodes:     len(built.Episodes),
		Entities:     built.Entities,
		Covariates:   bank.Covariates(),
		Insufficient: built.Insufficient,
	}
	for _, transition := range bank.Fitted() {
		info.Fitted = append(info.Fitted, transition.String())
	}
	for _, transition := range bank.Unavailable() {
		info.Unavailable = append(info.Unavailable, transition.String())
	}

	s.mu.Lock()
	s.bank = bank
	s.info = info
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BankFitsTotal.Add(ctx, 1)
		s.metrics.BankFitDuration.Record(ctx, time.Since(start).Seconds())
	}

	s.logger.InfoContext(ctx, "model bank trained",
		"bank_id", info.BankID,
		"episodes", info.Episodes,
		"entities", info.Entities,
		"fitted", info.Fitted,
		"duration", time.Since(start).String(),
	)
	return info, nil
}

// Info returns metadata for the current bank, or an error when none is
// trained yet.
func (s *RiskService) Info() (*BankInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return nil, apierrors.ErrBankNotFound
	}
	return s.info, nil
}

// currentBank returns the live bank or ErrBankNotFound
func (s *RiskService) currentBank() (*hazard.ModelBank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bank == nil {
		return nil, apierrors.ErrBankNotFound
	}
	return s.bank, nil
}

// Score computes the finite-horizon risk assessment for one entity
func (s *RiskService) Score(ctx context.Context, state hazard.EntityState, horizonDays int) (*hazard.RiskAssessment, error) {
	bank, err := s.currentBank()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	assessment, err := hazard.Score(bank, state, horizonDays)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ScoresTotal.Add(ctx, 1)
		s.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds())
	}

	s.logger.DebugContext(ctx, "entity scored",
		"entity_id", state.EntityID,
		"horizon_days", horizonDays,
		"overall", assessment.Overall,
		"level", string(assessment.Level),
	)
	return assessment, nil
}

// ScorePortfolio scores a batch of entities; per-entity failures are
// skipped, not fatal.
func (s *RiskService) ScorePortfolio(ctx context.Context, states []hazard.EntityState, horizonDays int) ([]*hazard.RiskAssessment, error) {
	if horizonDays <= 0 {
		return nil, &hazard.InvalidHorizonError{HorizonDays: horizonDays}
	}
	bank, err := s.currentBank()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	assessments := hazard.ScorePortfolio(ctx, bank, states, horizonDays, s.logger)
	if s.metrics != nil {
		s.metrics.ScoresTotal.Add(ctx, int64(len(assessments)))
		s.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds())
	}
	return assessments, nil
}

// CheckAlert scores an entity and compares the overall transition
// probability against the caller's threshold.
func (s *RiskService) CheckAlert(ctx context.Context, state hazard.EntityState, horizonDays int, threshold float64) (*AlertSignal, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, apierrors.ErrValidation("threshold", "must be in (0,1)")
	}

	assessment, err := s.Score(ctx, state, horizonDays)
	if err != nil {
		return nil, err
	}

	signal := &AlertSignal{
		EntityID:    state.EntityID,
		Triggered:   assessment.Overall > threshold,
		Overall:     assessment.Overall,
		Threshold:   threshold,
		Level:       assessment.Level,
		HorizonDays: horizonDays,
	}
	if signal.Triggered {
		if s.metrics != nil {
			s.metrics.AlertsRaisedTotal.Add(ctx, 1)
		}
		s.logger.WarnContext(ctx, "risk alert triggered",
			"entity_id", state.EntityID,
			"overall", assessment.Overall,
			"threshold", threshold,
			"level", string(assessment.Level),
		)
	}
	return signal, nil
}
