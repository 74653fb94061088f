// Package backtest validates fitted transition-hazard banks with
// rolling-origin resampling over a raw state-history corpus. Each fold
// fits only on records inside its training window and evaluates
// predictions at the validation and test window starts against the
// outcomes realized after each origin, so no future information leaks
// into any fit.
package backtest

import (
	"fmt"
	"time"

	"ratingrisk/internal/hazard"
)

// Window is a half-open observation interval [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether the two windows share any instant
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// IsValid reports whether the window has positive length
func (w Window) IsValid() bool {
	return w.End.After(w.Start)
}

// FoldSpec is one rolling-origin fold: a training window for fitting,
// then a validation window and a test window. Predictions are scored
// twice per fold, once as of each out-of-sample window's start.
type FoldSpec struct {
	Index      int    `json:"index"`
	Train      Window `json:"train"`
	Validation Window `json:"validation"`
	Test       Window `json:"test"`
}

// IsValid checks fold window ordering: validation must begin no earlier
// than the training window ends, and test no earlier than validation ends.
func (f FoldSpec) IsValid() bool {
	return f.Train.IsValid() && f.Validation.IsValid() && f.Test.IsValid() &&
		!f.Validation.Start.Before(f.Train.End) &&
		!f.Test.Start.Before(f.Validation.End)
}

// RollingFolds generates rolling-origin folds covering [start, end): each
// fold trains on trainLen, validates on the following valLen, and tests on
// the testLen after that, with the origin advancing by step. Returns nil
// when the corpus is too short for even one fold.
func RollingFolds(start, end time.Time, trainLen, valLen, testLen, step time.Duration) []FoldSpec {
	if step <= 0 || trainLen <= 0 || valLen <= 0 || testLen <= 0 {
		return nil
	}
	var folds []FoldSpec
	for origin := start.Add(trainLen); !origin.Add(valLen + testLen).After(end); origin = origin.Add(step) {
		folds = append(folds, FoldSpec{
			Index:      len(folds),
			Train:      Window{Start: origin.Add(-trainLen), End: origin},
			Validation: Window{Start: origin, End: origin.Add(valLen)},
			Test:       Window{Start: origin.Add(valLen), End: origin.Add(valLen + testLen)},
		})
	}
	return folds
}

// MetricValue is a metric that may be undefined for a fold. An undefined
// metric is reported as absent, never as zero: a fold with no comparable
// pairs says nothing about ranking quality.
type MetricValue struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// Defined wraps a computed metric value
func Defined(v float64) MetricValue {
	return MetricValue{Value: v, Defined: true}
}

// Undefined is the explicit absent-metric marker
func Undefined() MetricValue {
	return MetricValue{}
}

// TransitionMetrics holds one fold's evaluation for one transition type
type TransitionMetrics struct {
	Concordance  MetricValue `json:"concordance"`
	Brier        MetricValue `json:"brier"`
	AUC          MetricValue `json:"roc_auc"`
	Observations int         `json:"n_observations"`
	Events       int         `json:"n_events"`
}

// SplitMetrics is the evaluation of one out-of-sample split: the entity
// count scored at the split's start and the per-transition metrics over
// the horizon.
type SplitMetrics struct {
	Scored  int                                         `json:"n_scored"`
	Metrics map[hazard.TransitionType]TransitionMetrics `json:"metrics,omitempty"`
}

// FoldResult is the evaluated outcome of one fold: the validation and test
// splits, each scored at its own origin. A fold whose training window held
// no usable episodes is recorded with Skipped set and a reason; it aborts
// nothing beyond itself.
type FoldResult struct {
	Fold          FoldSpec                         `json:"fold"`
	TrainEpisodes int                              `json:"train_episodes"`
	Validation    SplitMetrics                     `json:"validation"`
	Test          SplitMetrics                     `json:"test"`
	Unfitted      map[hazard.TransitionType]string `json:"unfitted,omitempty"`
	Stress        bool                             `json:"stress_period"`
	StressFlagged bool                             `json:"stress_period_flagged"`
	Skipped       bool                             `json:"skipped"`
	SkipReason    string                           `json:"skip_reason,omitempty"`
}

// Result is the full backtest output
type Result struct {
	Folds       []FoldResult     `json:"folds"`
	HorizonDays int              `json:"horizon_days"`
	Stress      []StressAnalysis `json:"stress_analysis,omitempty"`
}

// StressLevel grades aggregate degradation under stress periods
type StressLevel string

const (
	StressHigh   StressLevel = "HIGH"
	StressMedium StressLevel = "MEDIUM"
	StressLow    StressLevel = "LOW"
)

// StressAnalysis compares aggregate metrics between stress and non-stress
// folds. Degradation percentages are relative to the non-stress aggregate.
type StressAnalysis struct {
	Transition             hazard.TransitionType `json:"transition"`
	NormalConcordance      MetricValue           `json:"normal_concordance"`
	StressConcordance      MetricValue           `json:"stress_concordance"`
	ConcordanceDegradation MetricValue           `json:"concordance_degradation_pct"`
	NormalBrier            MetricValue           `json:"normal_brier"`
	StressBrier            MetricValue           `json:"stress_brier"`
	Level                  StressLevel           `json:"level"`
	NormalFolds            int                   `json:"n_normal_folds"`
	StressFolds            int                   `json:"n_stress_folds"`
}

// Config drives one backtest run
type Config struct {
	// Folds lists the rolling-origin folds to evaluate; see RollingFolds
	Folds []FoldSpec
	// HorizonDays is the prediction horizon scored at each fold origin
	HorizonDays int
	// StressPeriods marks calendar intervals of known systemic stress;
	// folds whose test window overlaps one are stress folds
	StressPeriods []Window
	// StressDropThreshold is the relative concordance drop (vs the
	// non-stress aggregate) above which a stress fold is flagged
	StressDropThreshold float64
	// Fit configures the per-fold bank fits
	Fit hazard.FitConfig
	// MaxConcurrency bounds parallel fold evaluation; <=0 runs serially
	MaxConcurrency int
}

// DefaultStressDropThreshold is the relative concordance drop above which
// a stress fold is flagged.
const DefaultStressDropThreshold = 0.15

// DefaultConfig returns a runnable configuration for the given folds
func DefaultConfig(folds []FoldSpec) Config {
	return Config{
		Folds:               folds,
		HorizonDays:         90,
		StressDropThreshold: DefaultStressDropThreshold,
		Fit:                 hazard.DefaultFitConfig(),
		MaxConcurrency:      4,
	}
}

// Validate checks the configuration before a run
func (c Config) Validate() error {
	if len(c.Folds) == 0 {
		return fmt.Errorf("no folds configured")
	}
	for i, f := range c.Folds {
		if !f.IsValid() {
			return fmt.Errorf("fold %d has invalid windows", f.Index)
		}
		for _, prev := range c.Folds[:i] {
			if f.Test.Overlaps(prev.Test) {
				return fmt.Errorf("folds %d and %d have overlapping test windows", prev.Index, f.Index)
			}
		}
	}
	if c.HorizonDays <= 0 {
		return &hazard.InvalidHorizonError{HorizonDays: c.HorizonDays}
	}
	if c.StressDropThreshold <= 0 || c.StressDropThreshold >= 1 {
		return fmt.Errorf("stress drop threshold must be in (0,1), got %v", c.StressDropThreshold)
	}
	if !c.Fit.IsValid() {
		return fmt.Errorf("invalid fit configuration")
	}
	return nil
}
