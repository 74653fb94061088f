package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
)

func TestRiskReport_RenderText(t *testing.T) {
	svc := trainedService(t)
	info, err := svc.Info()
	require.NoError(t, err)

	states := []hazard.EntityState{
		{EntityID: "ACME", Grade: hazard.GradeBBB, Covariates: map[string]float64{"leverage": 0.7, "coverage": 1.5}},
		{EntityID: "GLOBEX", Grade: hazard.GradeA, Covariates: map[string]float64{"leverage": 0.2, "coverage": 4.0}},
	}
	assessments, err := svc.ScorePortfolio(context.Background(), states, 90)
	require.NoError(t, err)

	report := &RiskReport{
		GeneratedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		HorizonDays: 90,
		Bank:        info,
		Assessments: assessments,
	}
	text := report.RenderText()

	assert.Contains(t, text, "RATING TRANSITION RISK REPORT")
	assert.Contains(t, text, "2024-06-01 12:00:00 UTC")
	assert.Contains(t, text, "Horizon:   90 days")
	assert.Contains(t, text, info.BankID)
	assert.Contains(t, text, "ACME")
	assert.Contains(t, text, "GLOBEX")
	assert.Contains(t, text, "Entities scored: 2")
	// Unfitted causes are shown as absent, not zero
	assert.Contains(t, text, "default=n/a")
	assert.Contains(t, text, "END OF REPORT")
}

func TestRiskReport_RenderText_WithBacktest(t *testing.T) {
	result := &backtest.Result{
		HorizonDays: 90,
		Folds: []backtest.FoldResult{
			{
				Fold: backtest.FoldSpec{
					Index:      0,
					Train:      backtest.Window{Start: day(0), End: day(365)},
					Validation: backtest.Window{Start: day(365), End: day(455)},
					Test:       backtest.Window{Start: day(455), End: day(545)},
				},
				TrainEpisodes: 12,
				Validation: backtest.SplitMetrics{
					Scored: 8,
					Metrics: map[hazard.TransitionType]backtest.TransitionMetrics{
						hazard.TransitionDowngrade: {
							Concordance:  backtest.Defined(0.81),
							Brier:        backtest.Defined(0.09),
							AUC:          backtest.Defined(0.78),
							Observations: 8,
							Events:       4,
						},
					},
				},
				Test: backtest.SplitMetrics{
					Scored: 8,
					Metrics: map[hazard.TransitionType]backtest.TransitionMetrics{
						hazard.TransitionDowngrade: {
							Concordance:  backtest.Defined(0.72),
							Brier:        backtest.Defined(0.11),
							AUC:          backtest.Undefined(),
							Observations: 8,
							Events:       3,
						},
					},
				},
			},
			{
				Fold: backtest.FoldSpec{
					Index:      1,
					Train:      backtest.Window{Start: day(90), End: day(455)},
					Validation: backtest.Window{Start: day(455), End: day(545)},
					Test:       backtest.Window{Start: day(545), End: day(635)},
				},
				Skipped:    true,
				SkipReason: "no training episodes in window",
			},
		},
		Stress: []backtest.StressAnalysis{
			{
				Transition:             hazard.TransitionDowngrade,
				NormalConcordance:      backtest.Defined(0.75),
				StressConcordance:      backtest.Defined(0.65),
				ConcordanceDegradation: backtest.Defined(13.33),
				Level:                  backtest.StressMedium,
				NormalFolds:            1,
				StressFolds:            2,
			},
		},
	}

	report := &RiskReport{
		GeneratedAt: time.Now(),
		HorizonDays: 90,
		Backtest:    result,
	}
	text := report.RenderText()

	assert.Contains(t, text, "BACKTEST")
	// One row per split: the validation and test metrics both surface
	assert.Contains(t, text, "val")
	assert.Contains(t, text, "0.8100")
	assert.Contains(t, text, "0.7200")
	assert.Contains(t, text, "n/a")
	assert.Contains(t, text, "skipped: no training episodes in window")
	assert.Contains(t, text, "STRESS ANALYSIS")
	assert.Contains(t, text, "degradation=13.3%")
	assert.Contains(t, text, "[MEDIUM]")
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "0.5000", formatMetric(backtest.Defined(0.5)))
	assert.Equal(t, "n/a", formatMetric(backtest.Undefined()))
}
