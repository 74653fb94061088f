package hazard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedBank(t *testing.T) *ModelBank {
	t.Helper()
	bank, err := FitBank(context.Background(), downgradeHeavyPool(), DefaultFitConfig(), nil)
	require.NoError(t, err)
	return bank
}

func scoringState(id string) EntityState {
	return EntityState{
		EntityID: id,
		Grade:    GradeBBB,
		Covariates: map[string]float64{
			"leverage": 0.55,
			"coverage": 1.5,
		},
	}
}

func TestScore_InvalidHorizon(t *testing.T) {
	bank := fittedBank(t)
	for _, horizon := range []int{0, -1, -90} {
		_, err := Score(bank, scoringState("E1"), horizon)
		var invalid *InvalidHorizonError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, horizon, invalid.HorizonDays)
	}
}

func TestScore_CovariateMismatch(t *testing.T) {
	bank := fittedBank(t)

	tests := []struct {
		name       string
		covariates map[string]float64
		missing    []string
		unexpected []string
	}{
		{
			name:       "missing covariate",
			covariates: map[string]float64{"leverage": 0.5},
			missing:    []string{"coverage"},
		},
		{
			name: "unexpected covariate",
			covariates: map[string]float64{
				"leverage": 0.5, "coverage": 1.5, "momentum": 0.1,
			},
			unexpected: []string{"momentum"},
		},
		{
			name:       "both",
			covariates: map[string]float64{"leverage": 0.5, "momentum": 0.1},
			missing:    []string{"coverage"},
			unexpected: []string{"momentum"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := EntityState{EntityID: "E1", Grade: GradeBBB, Covariates: tt.covariates}
			_, err := Score(bank, state, 90)

			var mismatch *CovariateMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.missing, mismatch.Missing)
			assert.Equal(t, tt.unexpected, mismatch.Unexpected)
		})
	}
}

func TestScore_BoundsAndUnavailable(t *testing.T) {
	bank := fittedBank(t)

	assessment, err := Score(bank, scoringState("E1"), 90)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, assessment.Overall, 0.0)
	assert.LessOrEqual(t, assessment.Overall, 1.0)
	for transition, p := range assessment.PerTransition {
		assert.GreaterOrEqual(t, p, 0.0, "%s", transition)
		assert.LessOrEqual(t, p, 1.0, "%s", transition)
		assert.GreaterOrEqual(t, assessment.CumulativeHazards[transition], 0.0)
	}

	// The pool carries no default events: that probability is absent, not zero
	assert.Equal(t, []TransitionType{TransitionDefault}, assessment.Unavailable)
	_, present := assessment.PerTransition[TransitionDefault]
	assert.False(t, present)
}

func TestScore_OverallCombinesCauses(t *testing.T) {
	bank := fittedBank(t)

	assessment, err := Score(bank, scoringState("E1"), 180)
	require.NoError(t, err)

	survival := 1.0
	for _, p := range assessment.PerTransition {
		survival *= 1.0 - p
	}
	assert.InDelta(t, 1.0-survival, assessment.Overall, 1e-12)
	for _, p := range assessment.PerTransition {
		assert.GreaterOrEqual(t, assessment.Overall, p)
	}
}

func TestScore_MonotoneInHorizon(t *testing.T) {
	bank := fittedBank(t)
	state := scoringState("E1")

	prev := 0.0
	for _, horizon := range []int{30, 90, 180, 365, 1000} {
		assessment, err := Score(bank, state, horizon)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, assessment.Overall, prev,
			"overall probability must not decrease with horizon %d", horizon)
		prev = assessment.Overall
	}
}

func TestScore_Idempotent(t *testing.T) {
	bank := fittedBank(t)
	state := scoringState("E1")

	a1, err := Score(bank, state, 90)
	require.NoError(t, err)
	a2, err := Score(bank, state, 90)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestScorePortfolio_SkipsFailingEntities(t *testing.T) {
	bank := fittedBank(t)

	states := []EntityState{
		scoringState("GOOD1"),
		{EntityID: "BAD", Grade: GradeBB, Covariates: map[string]float64{"leverage": 0.5}},
		scoringState("GOOD2"),
	}

	assessments := ScorePortfolio(context.Background(), bank, states, 90, nil)
	require.Len(t, assessments, 2)
	assert.Equal(t, "GOOD1", assessments[0].EntityID)
	assert.Equal(t, "GOOD2", assessments[1].EntityID)
}

func BenchmarkScore(b *testing.B) {
	bank, err := FitBank(context.Background(), downgradeHeavyPool(), DefaultFitConfig(), nil)
	if err != nil {
		b.Fatal(err)
	}
	state := scoringState("BENCH")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Score(bank, state, 90); err != nil {
			b.Fatal(err)
		}
	}
}

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		overall float64
		want    RiskLevel
	}{
		{0.50, RiskHigh},
		{0.30, RiskHigh},
		{0.29, RiskMedium},
		{0.10, RiskMedium},
		{0.09, RiskLow},
		{0.05, RiskLow},
		{0.04, RiskVeryLow},
		{0.0, RiskVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRisk(tt.overall), "overall=%v", tt.overall)
	}
}
