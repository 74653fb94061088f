package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ratingrisk/internal/hazard"
)

// Run executes the configured rolling-origin backtest over the raw record
// corpus. Records must be chronological per entity, as for episode
// building. Each fold fits a fresh bank on its training window only, then
// scores every entity alive at the validation and test window starts and
// compares predictions against the outcomes realized inside the horizon
// from each origin. Folds evaluate in parallel up to cfg.MaxConcurrency,
// each writing its own result slot.
func Run(ctx context.Context, records []hazard.StateHistoryRecord, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest configuration: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to backtest")
	}

	byEntity := groupByEntity(records)

	results := make([]FoldResult, len(cfg.Folds))
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, fold := range cfg.Folds {
		g.Go(func() error {
			fr, err := runFold(gctx, byEntity, fold, cfg, logger)
			if err != nil {
				return err
			}
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Folds: results, HorizonDays: cfg.HorizonDays}
	flagStressFolds(result, cfg.StressDropThreshold)
	result.Stress = analyzeStress(result)

	logger.InfoContext(ctx, "backtest complete",
		"folds", len(results),
		"horizon_days", cfg.HorizonDays,
		"stress_folds", countStress(results),
	)
	return result, nil
}

// runFold fits and evaluates a single fold. Only unusable input aborts the
// run; a fold with no training material is reported skipped.
func runFold(ctx context.Context, byEntity map[string][]hazard.StateHistoryRecord, fold FoldSpec, cfg Config, logger *slog.Logger) (FoldResult, error) {
	fr := FoldResult{Fold: fold, Stress: overlapsAny(fold.Test, cfg.StressPeriods)}

	train := windowRecords(byEntity, fold.Train)
	built, err := hazard.BuildEpisodes(ctx, train, logger)
	if err != nil {
		return fr, fmt.Errorf("fold %d: %w", fold.Index, err)
	}
	fr.TrainEpisodes = len(built.Episodes)
	if len(built.Episodes) == 0 {
		fr.Skipped = true
		fr.SkipReason = "no training episodes in window"
		logger.WarnContext(ctx, "fold skipped",
			"fold", fold.Index,
			"reason", fr.SkipReason,
		)
		return fr, nil
	}

	bank, err := hazard.FitBank(ctx, built.Episodes, cfg.Fit, logger)
	if err != nil {
		fr.Skipped = true
		fr.SkipReason = fmt.Sprintf("bank fit failed: %v", err)
		logger.WarnContext(ctx, "fold skipped",
			"fold", fold.Index,
			"reason", fr.SkipReason,
		)
		return fr, nil
	}

	fr.Unfitted = make(map[hazard.TransitionType]string)
	for _, transition := range bank.Unavailable() {
		fr.Unfitted[transition] = bank.FitError(transition).Error()
	}
	if len(fr.Unfitted) == 0 {
		fr.Unfitted = nil
	}

	fr.Validation = evaluateSplit(byEntity, bank, fold.Validation.Start, cfg.HorizonDays)
	fr.Test = evaluateSplit(byEntity, bank, fold.Test.Start, cfg.HorizonDays)
	return fr, nil
}

// evaluateSplit scores every entity alive at the split origin and computes
// the per-transition metrics for the horizon starting there.
func evaluateSplit(byEntity map[string][]hazard.StateHistoryRecord, bank *hazard.ModelBank, asOf time.Time, horizonDays int) SplitMetrics {
	obs := collectObservations(byEntity, bank, asOf, horizonDays)

	split := SplitMetrics{
		Scored:  len(obs),
		Metrics: make(map[hazard.TransitionType]TransitionMetrics),
	}
	for _, transition := range hazard.TransitionTypes {
		model, ok := bank.Model(transition)
		if !ok {
			continue
		}
		series := make([]observation, len(obs))
		events := 0
		for j, o := range obs {
			h := model.CumulativeHazard(float64(horizonDays), o.covariates)
			event := o.realized == transition && o.changed
			if event {
				events++
			}
			series[j] = observation{
				score:    1.0 - math.Exp(-h),
				event:    event,
				timeDays: o.timeDays,
			}
		}
		split.Metrics[transition] = TransitionMetrics{
			Concordance:  concordance(series),
			Brier:        brier(series),
			AUC:          rocAUC(series),
			Observations: len(series),
			Events:       events,
		}
	}
	return split
}

// entityOutcome is one entity's scoring input and realized outcome at a
// fold origin.
type entityOutcome struct {
	covariates map[string]float64
	changed    bool
	realized   hazard.TransitionType
	timeDays   float64
}

// collectObservations scores every entity with a known, non-absorbed state
// at the fold origin and records what actually happened to it inside the
// horizon. Entities whose state never changes are censored at the horizon.
func collectObservations(byEntity map[string][]hazard.StateHistoryRecord, bank *hazard.ModelBank, asOf time.Time, horizonDays int) []entityOutcome {
	ids := make([]string, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	horizon := asOf.AddDate(0, 0, horizonDays)
	names := bank.Covariates()

	var out []entityOutcome
	for _, id := range ids {
		recs := byEntity[id]
		current := -1
		for k := range recs {
			if recs[k].Date.After(asOf) {
				break
			}
			current = k
		}
		if current < 0 || recs[current].Grade.IsAbsorbing() {
			continue
		}

		// The evaluation vector mirrors the fit design: the declared
		// covariate set, absent names contributing zero, entry grade from
		// the entity's state at the origin.
		covs := make(map[string]float64, len(names))
		for _, name := range names {
			if name == hazard.EntryGradeCovariate {
				covs[name] = float64(recs[current].Grade.Rank())
				continue
			}
			covs[name] = recs[current].Covariates[name]
		}

		outcome := entityOutcome{
			covariates: covs,
			timeDays:   float64(horizonDays),
		}
		grade := recs[current].Grade
		for k := current + 1; k < len(recs); k++ {
			if recs[k].Date.After(horizon) {
				break
			}
			if recs[k].Grade == grade {
				continue
			}
			exit := hazard.ExitEventFor(grade, recs[k].Grade)
			if transition, ok := exit.Transition(); ok {
				outcome.changed = true
				outcome.realized = transition
				outcome.timeDays = recs[k].Date.Sub(asOf).Hours() / 24.0
			}
			break
		}
		out = append(out, outcome)
	}
	return out
}

// flagStressFolds marks each stress fold whose test-split concordance, for
// any fitted transition, drops more than the threshold relative to the
// non-stress aggregate for that transition.
func flagStressFolds(result *Result, threshold float64) {
	normal := aggregateConcordance(result.Folds, false)

	for i := range result.Folds {
		fr := &result.Folds[i]
		if !fr.Stress || fr.Skipped {
			continue
		}
		for _, transition := range hazard.TransitionTypes {
			base, ok := normal[transition]
			if !ok || base.Value <= 0 {
				continue
			}
			m, present := fr.Test.Metrics[transition]
			if !present || !m.Concordance.Defined {
				continue
			}
			if (base.Value-m.Concordance.Value)/base.Value > threshold {
				fr.StressFlagged = true
				break
			}
		}
	}
}

// aggregateConcordance averages defined per-fold test-split concordance per
// transition over folds in (stress==true) or out of (stress==false) stress
// periods.
func aggregateConcordance(folds []FoldResult, stress bool) map[hazard.TransitionType]MetricValue {
	out := make(map[hazard.TransitionType]MetricValue)
	for _, transition := range hazard.TransitionTypes {
		sum, n := 0.0, 0
		for _, fr := range folds {
			if fr.Skipped || fr.Stress != stress {
				continue
			}
			if m, ok := fr.Test.Metrics[transition]; ok && m.Concordance.Defined {
				sum += m.Concordance.Value
				n++
			}
		}
		if n > 0 {
			out[transition] = Defined(sum / float64(n))
		}
	}
	return out
}

// analyzeStress builds the aggregate stress-vs-normal comparison, one entry
// per transition type with data on both sides.
func analyzeStress(result *Result) []StressAnalysis {
	normalC := aggregateConcordance(result.Folds, false)
	stressC := aggregateConcordance(result.Folds, true)
	normalB := aggregateBrier(result.Folds, false)
	stressB := aggregateBrier(result.Folds, true)
	normalN, stressN := countFolds(result.Folds)

	var out []StressAnalysis
	for _, transition := range hazard.TransitionTypes {
		nc, hasNormal := normalC[transition]
		sc, hasStress := stressC[transition]
		if !hasNormal || !hasStress {
			continue
		}
		sa := StressAnalysis{
			Transition:        transition,
			NormalConcordance: nc,
			StressConcordance: sc,
			NormalBrier:       normalB[transition],
			StressBrier:       stressB[transition],
			NormalFolds:       normalN,
			StressFolds:       stressN,
		}
		if nc.Value > 0 {
			degradation := (nc.Value - sc.Value) / nc.Value * 100
			sa.ConcordanceDegradation = Defined(degradation)
			switch {
			case degradation > 20:
				sa.Level = StressHigh
			case degradation > 10:
				sa.Level = StressMedium
			default:
				sa.Level = StressLow
			}
		}
		out = append(out, sa)
	}
	return out
}

func aggregateBrier(folds []FoldResult, stress bool) map[hazard.TransitionType]MetricValue {
	out := make(map[hazard.TransitionType]MetricValue)
	for _, transition := range hazard.TransitionTypes {
		sum, n := 0.0, 0
		for _, fr := range folds {
			if fr.Skipped || fr.Stress != stress {
				continue
			}
			if m, ok := fr.Test.Metrics[transition]; ok && m.Brier.Defined {
				sum += m.Brier.Value
				n++
			}
		}
		if n > 0 {
			out[transition] = Defined(sum / float64(n))
		}
	}
	return out
}

func countFolds(folds []FoldResult) (normal, stress int) {
	for _, fr := range folds {
		if fr.Skipped {
			continue
		}
		if fr.Stress {
			stress++
		} else {
			normal++
		}
	}
	return normal, stress
}

func countStress(folds []FoldResult) int {
	n := 0
	for _, fr := range folds {
		if fr.Stress {
			n++
		}
	}
	return n
}

func overlapsAny(w Window, periods []Window) bool {
	for _, p := range periods {
		if w.Overlaps(p) {
			return true
		}
	}
	return false
}

func groupByEntity(records []hazard.StateHistoryRecord) map[string][]hazard.StateHistoryRecord {
	out := make(map[string][]hazard.StateHistoryRecord)
	for _, r := range records {
		out[r.EntityID] = append(out[r.EntityID], r)
	}
	return out
}

// windowRecords filters the corpus to records observed inside the window,
// preserving per-entity order, with deterministic entity ordering.
func windowRecords(byEntity map[string][]hazard.StateHistoryRecord, w Window) []hazard.StateHistoryRecord {
	ids := make([]string, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []hazard.StateHistoryRecord
	for _, id := range ids {
		for _, r := range byEntity[id] {
			if w.Contains(r.Date) {
				out = append(out, r)
			}
		}
	}
	return out
}
