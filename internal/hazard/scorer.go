package hazard

import (
	"context"
	"log/slog"
	"sort"
)

// Score computes the finite-horizon risk assessment for one entity against
// a fitted bank. For each fitted cause k the transition probability is
// p_k = 1 - exp(-H_k(h)) with H_k the cause-specific cumulative hazard at
// horizon h; the overall state-change probability combines the causes as
// 1 - prod(1 - p_k). Causes the bank could not fit appear in Unavailable
// with no probability entry. Pure: identical inputs give identical output.
func Score(bank *ModelBank, state EntityState, horizonDays int) (*RiskAssessment, error) {
	if horizonDays <= 0 {
		return nil, &InvalidHorizonError{HorizonDays: horizonDays}
	}
	if err := checkCovariates(bank, state); err != nil {
		return nil, err
	}

	covs := scoringCovariates(bank, state)

	assessment := &RiskAssessment{
		EntityID:          state.EntityID,
		Grade:             state.Grade,
		HorizonDays:       horizonDays,
		PerTransition:     make(map[TransitionType]float64, len(TransitionTypes)),
		CumulativeHazards: make(map[TransitionType]float64, len(TransitionTypes)),
	}

	survival := 1.0
	for _, transition := range TransitionTypes {
		model, ok := bank.Model(transition)
		if !ok {
			assessment.Unavailable = append(assessment.Unavailable, transition)
			continue
		}
		h := model.CumulativeHazard(float64(horizonDays), covs)
		p := 1.0 - expSafe(-h)
		p = clamp01(p)
		assessment.CumulativeHazards[transition] = h
		assessment.PerTransition[transition] = p
		survival *= 1.0 - p
	}

	assessment.Overall = clamp01(1.0 - survival)
	assessment.Level = ClassifyRisk(assessment.Overall)
	return assessment, nil
}

// ScorePortfolio scores many entities against one bank. Per-entity failures
// are logged and skipped so one bad state does not sink the batch; the
// returned slice preserves the order of the entities that scored.
func ScorePortfolio(ctx context.Context, bank *ModelBank, states []EntityState, horizonDays int, logger *slog.Logger) []*RiskAssessment {
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]*RiskAssessment, 0, len(states))
	skipped := 0
	for _, state := range states {
		assessment, err := Score(bank, state, horizonDays)
		if err != nil {
			skipped++
			logger.WarnContext(ctx, "entity skipped during portfolio scoring",
				"entity_id", state.EntityID,
				"error", err,
			)
			continue
		}
		out = append(out, assessment)
	}

	logger.InfoContext(ctx, "scored portfolio",
		"entities", len(states),
		"scored", len(out),
		"skipped", skipped,
		"horizon_days", horizonDays,
	)
	return out
}

// checkCovariates verifies the scoring vector carries exactly the names the
// bank was fit on. The synthetic entry-grade column is supplied by the
// scorer, not the caller, and is exempt on both sides.
func checkCovariates(bank *ModelBank, state EntityState) error {
	expected := make(map[string]struct{}, len(bank.covariates))
	for _, name := range bank.covariates {
		if name == EntryGradeCovariate {
			continue
		}
		expected[name] = struct{}{}
	}

	var missing, unexpected []string
	for name := range expected {
		if _, ok := state.Covariates[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range state.Covariates {
		if _, ok := expected[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return &CovariateMismatchError{Missing: missing, Unexpected: unexpected}
}

// scoringCovariates builds the evaluation vector, injecting the entry-grade
// ordinal when the bank was fit with it.
func scoringCovariates(bank *ModelBank, state EntityState) map[string]float64 {
	covs := make(map[string]float64, len(state.Covariates)+1)
	for k, v := range state.Covariates {
		covs[k] = v
	}
	if contains(bank.covariates, EntryGradeCovariate) {
		covs[EntryGradeCovariate] = float64(state.Grade.Rank())
	}
	return covs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
