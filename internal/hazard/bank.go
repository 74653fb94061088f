package hazard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// EntryGradeCovariate is the synthetic covariate carrying the episode's
// entry grade as an ordinal. Injected when FitConfig.IncludeEntryGrade is
// set; scoring injects the matching value from EntityState.Grade.
const EntryGradeCovariate = "entry_grade"

// DefaultCovariates is the standard financial-ratio indicator set. Banks
// fit with an explicit covariate list typically start here; an empty
// FitConfig.Covariates instead uses whatever names the episode pool carries.
var DefaultCovariates = []string{
	"asset_turnover",
	"current_ratio",
	"debt_to_assets",
	"equity_ratio",
	"interest_coverage",
	"operating_margin",
	"quick_ratio",
	"roa",
	"roe",
	"working_capital_ratio",
}

// FitConfig controls a bank fit. The zero value is not usable; start from
// DefaultFitConfig.
type FitConfig struct {
	// Penalizer is the ridge penalty applied to every coefficient
	Penalizer float64
	// MinEvents is the event-count floor per transition type below which
	// the fit is refused with InsufficientEventsError
	MinEvents int
	// MaxIterations bounds the Newton-Raphson solver per model
	MaxIterations int
	// Tolerance is the gradient convergence tolerance
	Tolerance float64
	// Covariates fixes the covariate set; empty means the sorted union of
	// names observed across all episodes
	Covariates []string
	// IncludeEntryGrade adds the entry-grade ordinal as a covariate
	IncludeEntryGrade bool
	// MaxConcurrency bounds parallel per-transition fits; <=0 fits serially
	MaxConcurrency int
}

// DefaultFitConfig returns the standard fitting configuration
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Penalizer:         DefaultPenalizer,
		MinEvents:         DefaultMinEvents,
		MaxIterations:     DefaultMaxIterations,
		Tolerance:         DefaultTolerance,
		IncludeEntryGrade: true,
		MaxConcurrency:    len(TransitionTypes),
	}
}

// IsValid reports whether the configuration can drive a fit
func (c FitConfig) IsValid() bool {
	return c.Penalizer >= 0 && c.MinEvents >= 1 &&
		c.MaxIterations >= 1 && c.Tolerance > 0
}

// ModelBank holds the cause-specific models fit over one episode pool.
// Transition types with too few events are recorded as failures; the bank
// is still usable for the types that fit. Read-only after FitBank returns.
type ModelBank struct {
	covariates []string
	models     map[TransitionType]*HazardModel
	failures   map[TransitionType]error
}

// Covariates returns the covariate names the bank was fit on, in the
// design-column order shared by every model.
func (b *ModelBank) Covariates() []string {
	out := make([]string, len(b.covariates))
	copy(out, b.covariates)
	return out
}

// Model returns the fitted model for a transition type, or false when that
// type failed to fit.
func (b *ModelBank) Model(t TransitionType) (*HazardModel, bool) {
	m, ok := b.models[t]
	return m, ok
}

// FitError returns the failure recorded for a transition type, or nil
func (b *ModelBank) FitError(t TransitionType) error {
	return b.failures[t]
}

// Fitted returns the transition types with a usable model, in canonical order
func (b *ModelBank) Fitted() []TransitionType {
	var out []TransitionType
	for _, t := range TransitionTypes {
		if _, ok := b.models[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Unavailable returns the transition types without a usable model, in
// canonical order.
func (b *ModelBank) Unavailable() []TransitionType {
	var out []TransitionType
	for _, t := range TransitionTypes {
		if _, ok := b.models[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// FitBank fits one cause-specific proportional-hazards model per transition
// type over the pooled episodes. Each cause treats episodes ending in any
// other cause as censored at their exit, so every model sees the full pool.
// Fits run in parallel up to cfg.MaxConcurrency, each writing only its own
// slot, which keeps output independent of scheduling. An error is returned
// only when no transition type fits at all or the input is unusable;
// per-type shortfalls are recorded on the bank.
func FitBank(ctx context.Context, episodes []TransitionEpisode, cfg FitConfig, logger *slog.Logger) (*ModelBank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsValid() {
		return nil, fmt.Errorf("invalid fit configuration: %+v", cfg)
	}
	if len(episodes) == 0 {
		return nil, fmt.Errorf("no episodes to fit")
	}

	// Copy the configured list: the entry-grade append and sort below must
	// not write through to the caller's FitConfig.
	covariates := append([]string(nil), cfg.Covariates...)
	if len(covariates) == 0 {
		covariates = covariateUnion(episodes)
	}
	if cfg.IncludeEntryGrade && !contains(covariates, EntryGradeCovariate) {
		covariates = append(covariates, EntryGradeCovariate)
		sort.Strings(covariates)
	}

	bank := &ModelBank{
		covariates: covariates,
		models:     make(map[TransitionType]*HazardModel, len(TransitionTypes)),
		failures:   make(map[TransitionType]error, len(TransitionTypes)),
	}

	type slot struct {
		model *HazardModel
		err   error
	}
	results := make([]slot, len(TransitionTypes))

	workers := cfg.MaxConcurrency
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, transition := range TransitionTypes {
		wg.Add(1)
		go func(i int, transition TransitionType) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			model, err := fitTransition(episodes, transition, covariates, cfg)
			results[i] = slot{model: model, err: err}
		}(i, transition)
	}
	wg.Wait()

	fitted := 0
	for i, transition := range TransitionTypes {
		if results[i].err != nil {
			bank.failures[transition] = results[i].err
			logger.WarnContext(ctx, "transition model not fitted",
				"transition", transition.String(),
				"error", results[i].err,
			)
			continue
		}
		bank.models[transition] = results[i].model
		fitted++
		logger.InfoContext(ctx, "fitted transition model",
			"transition", transition.String(),
			"events", results[i].model.Events,
			"observations", results[i].model.Observations,
			"covariates", len(results[i].model.Covariates),
			"dropped", len(results[i].model.Dropped),
		)
	}

	if fitted == 0 {
		return nil, fmt.Errorf("no transition model could be fitted: %w", bank.failures[TransitionTypes[0]])
	}
	return bank, nil
}

// fitTransition fits a single cause-specific model. The other competing
// causes are treated as censoring.
func fitTransition(episodes []TransitionEpisode, transition TransitionType, covariates []string, cfg FitConfig) (*HazardModel, error) {
	events := 0
	for _, ep := range episodes {
		if t, ok := ep.Exit.Transition(); ok && t == transition {
			events++
		}
	}
	if events < cfg.MinEvents {
		return nil, &InsufficientEventsError{
			Transition: transition,
			Events:     events,
			Minimum:    cfg.MinEvents,
		}
	}

	kept, dropped := screenCovariates(episodes, covariates)

	d := coxData{
		durations: make([]float64, len(episodes)),
		events:    make([]bool, len(episodes)),
		x:         make([][]float64, len(episodes)),
		p:         len(kept),
	}
	for i, ep := range episodes {
		d.durations[i] = ep.DurationDays()
		t, ok := ep.Exit.Transition()
		d.events[i] = ok && t == transition
		d.x[i] = designRow(ep, kept)
	}

	beta, err := fitCoxModel(d, cfg.Penalizer, cfg.MaxIterations, cfg.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("fitting %s model: %w", transition, err)
	}

	return &HazardModel{
		Transition:   transition,
		Covariates:   kept,
		Coefficients: beta,
		Baseline:     breslowBaseline(d, beta),
		Dropped:      dropped,
		Events:       events,
		Observations: len(episodes),
	}, nil
}

// screenCovariates splits the covariate list into fit columns and columns
// dropped for having effectively zero variance across the pool. A constant
// column carries no discriminating information and destabilizes the solver.
func screenCovariates(episodes []TransitionEpisode, covariates []string) (kept, dropped []string) {
	for _, name := range covariates {
		n := float64(len(episodes))
		mean := 0.0
		for _, ep := range episodes {
			mean += episodeCovariate(ep, name)
		}
		mean /= n
		variance := 0.0
		for _, ep := range episodes {
			dv := episodeCovariate(ep, name) - mean
			variance += dv * dv
		}
		variance /= n
		if variance < MinCovariateVariance {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)
	}
	return kept, dropped
}

func designRow(ep TransitionEpisode, covariates []string) []float64 {
	row := make([]float64, len(covariates))
	for j, name := range covariates {
		row[j] = episodeCovariate(ep, name)
	}
	return row
}

// episodeCovariate resolves one design value, injecting the entry-grade
// ordinal for the synthetic column. Missing names contribute zero.
func episodeCovariate(ep TransitionEpisode, name string) float64 {
	if name == EntryGradeCovariate {
		return float64(ep.EntryGrade.Rank())
	}
	return ep.Covariates[name]
}

// covariateUnion collects the sorted union of covariate names across episodes
func covariateUnion(episodes []TransitionEpisode) []string {
	seen := make(map[string]struct{})
	for _, ep := range episodes {
		for name := range ep.Covariates {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
