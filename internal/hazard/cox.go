package hazard

import (
	"fmt"
	"math"
	"sort"
)

// coxData is the dense design extracted from episodes for one
// cause-specific fit: durations in days, event indicators for the target
// cause (all other causes censored), and one covariate column per name.
type coxData struct {
	durations []float64
	events    []bool
	x         [][]float64 // row per episode, column per covariate
	p         int
}

// fitCoxModel maximizes the ridge-penalized partial likelihood with the
// Efron tie correction via damped Newton-Raphson. It returns the
// coefficient vector aligned to the design columns.
func fitCoxModel(d coxData, penalizer float64, maxIter int, tol float64) ([]float64, error) {
	beta := make([]float64, d.p)
	if d.p == 0 {
		return beta, nil
	}

	ll := penalizedLogLikelihood(d, beta, penalizer)
	for iter := 0; iter < maxIter; iter++ {
		grad, info := scoreAndInformation(d, beta, penalizer)

		if normInf(grad) < tol {
			return beta, nil
		}

		step, err := choleskySolve(info, grad)
		if err != nil {
			return nil, fmt.Errorf("newton step failed at iteration %d: %w", iter, err)
		}

		// Damped update: halve the step until the penalized likelihood
		// stops decreasing. Guards against overshoot near separation.
		scale := 1.0
		improved := false
		for h := 0; h < 30; h++ {
			cand := make([]float64, d.p)
			for j := range cand {
				cand[j] = beta[j] + scale*step[j]
			}
			candLL := penalizedLogLikelihood(d, cand, penalizer)
			if candLL >= ll-1e-12 {
				beta = cand
				ll = candLL
				improved = true
				break
			}
			scale /= 2
		}
		if !improved {
			return beta, nil
		}
	}
	return beta, nil
}

// riskSweep iterates unique durations in descending order, maintaining the
// cumulative risk-set sums S0 = Σ w, S1 = Σ w·x, S2 = Σ w·x·xᵀ over all
// episodes with duration >= t, and invokes fn with the tied death set at t.
func riskSweep(d coxData, beta []float64,
	fn func(deaths []int, s0 float64, s1 []float64, s2 [][]float64)) {

	n := len(d.durations)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return d.durations[idx[a]] > d.durations[idx[b]]
	})

	s0 := 0.0
	s1 := make([]float64, d.p)
	s2 := newMatrix(d.p)

	for i := 0; i < n; {
		t := d.durations[idx[i]]
		var deaths []int
		for ; i < n && d.durations[idx[i]] == t; i++ {
			row := idx[i]
			w := expSafe(dot(beta, d.x[row]))
			s0 += w
			for j := 0; j < d.p; j++ {
				wx := w * d.x[row][j]
				s1[j] += wx
				for k := 0; k <= j; k++ {
					s2[j][k] += wx * d.x[row][k]
				}
			}
			if d.events[row] {
				deaths = append(deaths, row)
			}
		}
		if len(deaths) > 0 {
			mirrorLower(s2)
			fn(deaths, s0, s1, s2)
		}
	}
}

// penalizedLogLikelihood evaluates the Efron partial log likelihood minus
// the ridge penalty.
func penalizedLogLikelihood(d coxData, beta []float64, penalizer float64) float64 {
	ll := 0.0
	riskSweep(d, beta, func(deaths []int, s0 float64, s1 []float64, s2 [][]float64) {
		m := float64(len(deaths))
		s0d := 0.0
		for _, row := range deaths {
			eta := dot(beta, d.x[row])
			ll += eta
			s0d += expSafe(eta)
		}
		for l := 0; l < len(deaths); l++ {
			phi := s0 - (float64(l)/m)*s0d
			ll -= math.Log(phi)
		}
	})
	for _, b := range beta {
		ll -= 0.5 * penalizer * b * b
	}
	return ll
}

// scoreAndInformation computes the penalized score vector and observed
// information matrix (negative Hessian) in a single sweep.
func scoreAndInformation(d coxData, beta []float64, penalizer float64) (grad []float64, info [][]float64) {
	grad = make([]float64, d.p)
	info = newMatrix(d.p)

	riskSweep(d, beta, func(deaths []int, s0 float64, s1 []float64, s2 [][]float64) {
		m := float64(len(deaths))
		s0d := 0.0
		s1d := make([]float64, d.p)
		s2d := newMatrix(d.p)
		for _, row := range deaths {
			w := expSafe(dot(beta, d.x[row]))
			s0d += w
			for j := 0; j < d.p; j++ {
				grad[j] += d.x[row][j]
				wx := w * d.x[row][j]
				s1d[j] += wx
				for k := 0; k < d.p; k++ {
					s2d[j][k] += wx * d.x[row][k]
				}
			}
		}
		for l := 0; l < len(deaths); l++ {
			f := float64(l) / m
			phi := s0 - f*s0d
			for j := 0; j < d.p; j++ {
				zj := (s1[j] - f*s1d[j]) / phi
				grad[j] -= zj
				for k := 0; k < d.p; k++ {
					zk := (s1[k] - f*s1d[k]) / phi
					info[j][k] += (s2[j][k]-f*s2d[j][k])/phi - zj*zk
				}
			}
		}
	})

	for j := 0; j < d.p; j++ {
		grad[j] -= penalizer * beta[j]
		info[j][j] += penalizer
	}
	return grad, info
}

// breslowBaseline estimates the baseline cumulative hazard at the fitted
// coefficients: at each distinct event time, the increment is the number of
// tied events divided by the risk-set sum of hazard weights. Zero at time
// zero by construction; strictly a step function.
func breslowBaseline(d coxData, beta []float64) BaselineHazard {
	type step struct {
		t   float64
		inc float64
	}
	var steps []step
	riskSweep(d, beta, func(deaths []int, s0 float64, _ []float64, _ [][]float64) {
		steps = append(steps, step{
			t:   d.durations[deaths[0]],
			inc: float64(len(deaths)) / s0,
		})
	})
	// riskSweep visits times in descending order
	sort.Slice(steps, func(a, b int) bool { return steps[a].t < steps[b].t })

	b := BaselineHazard{
		times: make([]float64, len(steps)),
		cum:   make([]float64, len(steps)),
	}
	acc := 0.0
	for i, s := range steps {
		acc += s.inc
		b.times[i] = s.t
		b.cum[i] = acc
	}
	return b
}

// choleskySolve solves the SPD system A·x = b. The information matrix is
// positive definite whenever the ridge penalty is active, so no pivoting is
// needed; the system is at most a dozen covariates wide.
func choleskySolve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	l := newMatrix(n)
	for j := 0; j < n; j++ {
		sum := a[j][j]
		for k := 0; k < j; k++ {
			sum -= l[j][k] * l[j][k]
		}
		if sum <= 0 {
			return nil, fmt.Errorf("information matrix not positive definite at column %d", j)
		}
		l[j][j] = math.Sqrt(sum)
		for i := j + 1; i < n; i++ {
			s := a[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			l[i][j] = s / l[j][j]
		}
	}
	// Forward substitution L·y = b
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= l[i][k] * y[k]
		}
		y[i] = s / l[i][i]
	}
	// Back substitution Lᵀ·x = y
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		s := y[i]
		for k := i + 1; k < n; k++ {
			s -= l[k][i] * x[k]
		}
		x[i] = s / l[i][i]
	}
	return x, nil
}

// expSafe is exp with the argument clamped to avoid overflow to +Inf,
// which would poison risk-set sums.
func expSafe(v float64) float64 {
	if v > 700 {
		v = 700
	}
	if v < -700 {
		v = -700
	}
	return math.Exp(v)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normInf(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func newMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func mirrorLower(m [][]float64) {
	for j := range m {
		for k := 0; k < j; k++ {
			m[k][j] = m[j][k]
		}
	}
}
