package hazard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCholeskySolve(t *testing.T) {
	// A = [[4,2],[2,3]], b = [10, 9] -> x = [1.5, 2]
	a := [][]float64{{4, 2}, {2, 3}}
	b := []float64{10, 9}

	x, err := choleskySolve(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, x[0], 1e-12)
	assert.InDelta(t, 2.0, x[1], 1e-12)
}

func TestCholeskySolve_NotPositiveDefinite(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 1}}
	_, err := choleskySolve(a, []float64{1, 1})
	assert.Error(t, err)
}

func TestFitCoxModel_RecoversRiskDirection(t *testing.T) {
	// Episodes with x=1 fail early, episodes with x=0 fail late or are
	// censored: the coefficient must come out positive.
	d := coxData{p: 1}
	add := func(duration float64, event bool, x float64) {
		d.durations = append(d.durations, duration)
		d.events = append(d.events, event)
		d.x = append(d.x, []float64{x})
	}
	add(10, true, 1)
	add(15, true, 1)
	add(20, true, 1)
	add(25, true, 1)
	add(80, true, 0)
	add(90, true, 0)
	add(100, false, 0)
	add(120, false, 0)
	add(150, false, 1)
	add(200, false, 0)

	beta, err := fitCoxModel(d, DefaultPenalizer, DefaultMaxIterations, DefaultTolerance)
	require.NoError(t, err)
	require.Len(t, beta, 1)
	assert.Greater(t, beta[0], 0.0)
	assert.False(t, math.IsNaN(beta[0]))
	assert.False(t, math.IsInf(beta[0], 0))
}

func TestFitCoxModel_NoCovariates(t *testing.T) {
	d := coxData{
		durations: []float64{10, 20, 30},
		events:    []bool{true, false, true},
		x:         [][]float64{{}, {}, {}},
		p:         0,
	}
	beta, err := fitCoxModel(d, DefaultPenalizer, DefaultMaxIterations, DefaultTolerance)
	require.NoError(t, err)
	assert.Empty(t, beta)
}

func TestFitCoxModel_PenaltyShrinksCoefficients(t *testing.T) {
	d := coxData{p: 1}
	add := func(duration float64, event bool, x float64) {
		d.durations = append(d.durations, duration)
		d.events = append(d.events, event)
		d.x = append(d.x, []float64{x})
	}
	add(10, true, 1)
	add(20, true, 1)
	add(30, true, 0)
	add(100, false, 0)
	add(150, false, 1)
	add(200, false, 0)

	weak, err := fitCoxModel(d, 0.01, DefaultMaxIterations, DefaultTolerance)
	require.NoError(t, err)
	strong, err := fitCoxModel(d, 100, DefaultMaxIterations, DefaultTolerance)
	require.NoError(t, err)

	assert.Less(t, math.Abs(strong[0]), math.Abs(weak[0]))
	assert.InDelta(t, 0, strong[0], 0.05)
}

func TestBreslowBaseline_NelsonAalenAtZeroCoefficients(t *testing.T) {
	// With no covariates the Breslow estimator reduces to Nelson-Aalen:
	// increment d_i / n_at_risk at each event time.
	d := coxData{
		durations: []float64{10, 20, 30, 40},
		events:    []bool{true, false, true, false},
		x:         [][]float64{{}, {}, {}, {}},
		p:         0,
	}

	baseline := breslowBaseline(d, nil)
	require.True(t, baseline.IsValid())

	times, cum := baseline.Steps()
	require.Equal(t, []float64{10, 30}, times)
	assert.InDelta(t, 1.0/4.0, cum[0], 1e-12)
	assert.InDelta(t, 1.0/4.0+1.0/2.0, cum[1], 1e-12)

	assert.Equal(t, 0.0, baseline.At(0))
	assert.Equal(t, 0.0, baseline.At(5))
	assert.InDelta(t, 0.25, baseline.At(10), 1e-12)
	assert.InDelta(t, 0.25, baseline.At(29), 1e-12)
	assert.InDelta(t, 0.75, baseline.At(30), 1e-12)
	assert.InDelta(t, 0.75, baseline.At(10000), 1e-12)
}

func TestBreslowBaseline_TiedEventTimes(t *testing.T) {
	d := coxData{
		durations: []float64{10, 10, 20},
		events:    []bool{true, true, false},
		x:         [][]float64{{}, {}, {}},
		p:         0,
	}

	baseline := breslowBaseline(d, nil)
	times, cum := baseline.Steps()
	require.Equal(t, []float64{10}, times)
	assert.InDelta(t, 2.0/3.0, cum[0], 1e-12)
}

func TestExpSafe(t *testing.T) {
	assert.Equal(t, math.Exp(1), expSafe(1))
	assert.False(t, math.IsInf(expSafe(1e9), 1))
	assert.Greater(t, expSafe(-1e9), 0.0)
}
