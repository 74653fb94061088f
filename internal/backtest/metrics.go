package backtest

// observation is one scored entity's realized outcome for a single
// transition type: the predicted probability at the horizon, whether the
// transition occurred within the horizon, and the follow-up time in days
// (time to the first state change, or the horizon when none occurred).
type observation struct {
	score    float64
	event    bool
	timeDays float64
}

// concordance computes the time-aware concordance index: among pairs where
// one entity's event verifiably precedes the other's follow-up, the
// fraction where the earlier event carried the higher predicted risk. Tied
// scores count half. Undefined when no comparable pair exists.
func concordance(obs []observation) MetricValue {
	comparable, concordant := 0.0, 0.0
	for i := range obs {
		if !obs[i].event {
			continue
		}
		for j := range obs {
			if i == j {
				continue
			}
			// j must be known to survive past i's event time
			if obs[j].timeDays <= obs[i].timeDays {
				continue
			}
			comparable++
			switch {
			case obs[i].score > obs[j].score:
				concordant++
			case obs[i].score == obs[j].score:
				concordant += 0.5
			}
		}
	}
	if comparable == 0 {
		return Undefined()
	}
	return Defined(concordant / comparable)
}

// brier computes the mean squared error of the predicted horizon
// probabilities against the realized binary outcomes.
func brier(obs []observation) MetricValue {
	if len(obs) == 0 {
		return Undefined()
	}
	sum := 0.0
	for _, o := range obs {
		y := 0.0
		if o.event {
			y = 1.0
		}
		d := o.score - y
		sum += d * d
	}
	return Defined(sum / float64(len(obs)))
}

// rocAUC computes the probability that a randomly chosen event outranks a
// randomly chosen non-event by predicted score, ties counting half.
// Undefined when either class is empty.
func rocAUC(obs []observation) MetricValue {
	var pos, neg []float64
	for _, o := range obs {
		if o.event {
			pos = append(pos, o.score)
		} else {
			neg = append(neg, o.score)
		}
	}
	if len(pos) == 0 || len(neg) == 0 {
		return Undefined()
	}
	wins := 0.0
	for _, p := range pos {
		for _, n := range neg {
			switch {
			case p > n:
				wins++
			case p == n:
				wins += 0.5
			}
		}
	}
	return Defined(wins / float64(len(pos)*len(neg)))
}
