package hazard

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGoldenFitAndScore pins the full build-fit-score pipeline on a corpus
// whose covariates are all constant. Every column is screened out, so the
// downgrade model reduces to its baseline and the expected numbers follow
// in closed form: the baseline increment at each event time is
// 1 / (entities still at risk), and p(h) = 1 - exp(-H0(h)).
func TestGoldenFitAndScore(t *testing.T) {
	var records []StateHistoryRecord
	downgradeDays := []int{50, 100, 150, 200, 250}
	for i, d := range downgradeDays {
		id := fmt.Sprintf("E%d", i+1)
		records = append(records,
			record(id, 0, GradeBBB, map[string]float64{"leverage": 0.5}),
			record(id, d, GradeBB, nil),
		)
	}
	records = append(records,
		record("E6", 0, GradeBBB, map[string]float64{"leverage": 0.5}),
		record("E6", 300, GradeBBB, nil),
	)

	built, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	require.Len(t, built.Episodes, 6)

	bank, err := FitBank(context.Background(), built.Episodes, DefaultFitConfig(), nil)
	require.NoError(t, err)

	model, ok := bank.Model(TransitionDowngrade)
	require.True(t, ok)
	assert.Equal(t, 5, model.Events)
	assert.Equal(t, 6, model.Observations)
	// Constant columns (including the entry-grade ordinal) are screened
	assert.Empty(t, model.Covariates)
	assert.ElementsMatch(t, []string{"leverage", EntryGradeCovariate}, model.Dropped)
	assert.Equal(t, []TransitionType{TransitionUpgrade, TransitionDefault, TransitionWithdrawn},
		bank.Unavailable())

	times, cum := model.Baseline.Steps()
	require.Equal(t, []float64{50, 100, 150, 200, 250}, times)
	wantCum := []float64{
		1.0 / 6,
		1.0/6 + 1.0/5,
		1.0/6 + 1.0/5 + 1.0/4,
		1.0/6 + 1.0/5 + 1.0/4 + 1.0/3,
		1.0/6 + 1.0/5 + 1.0/4 + 1.0/3 + 1.0/2,
	}
	for i := range wantCum {
		assert.InDelta(t, wantCum[i], cum[i], 1e-12, "baseline step %d", i)
	}

	state := EntityState{
		EntityID:   "E1",
		Grade:      GradeBBB,
		Covariates: map[string]float64{"leverage": 0.5},
	}

	at90, err := Score(bank, state, 90)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/6, at90.CumulativeHazards[TransitionDowngrade], 1e-12)
	assert.InDelta(t, 1.0-math.Exp(-1.0/6), at90.PerTransition[TransitionDowngrade], 1e-12)
	assert.InDelta(t, 1.0-math.Exp(-1.0/6), at90.Overall, 1e-12)
	assert.Equal(t, RiskMedium, at90.Level)

	at365, err := Score(bank, state, 365)
	require.NoError(t, err)
	h365 := 1.0/6 + 1.0/5 + 1.0/4 + 1.0/3 + 1.0/2
	assert.InDelta(t, h365, at365.CumulativeHazards[TransitionDowngrade], 1e-12)
	assert.InDelta(t, 1.0-math.Exp(-h365), at365.Overall, 1e-12)
	assert.Equal(t, RiskHigh, at365.Level)
}
