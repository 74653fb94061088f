package hazard

import (
	"fmt"
	"sort"
	"time"
)

// Grade represents a credit-rating state on the fixed agency scale.
// Lower ordinal values are better ratings; GradeDefault and GradeWithdrawn
// are absorbing states that terminate an entity's rating history.
type Grade int

const (
	GradeAAA Grade = iota
	GradeAA
	GradeA
	GradeBBB
	GradeBB
	GradeB
	GradeCCC
	// GradeDefault is the absorbing default state (rating symbol "D")
	GradeDefault
	// GradeWithdrawn is the absorbing not-rated state (rating symbol "NR")
	GradeWithdrawn
)

var gradeSymbols = map[Grade]string{
	GradeAAA:       "AAA",
	GradeAA:        "AA",
	GradeA:         "A",
	GradeBBB:       "BBB",
	GradeBB:        "BB",
	GradeB:         "B",
	GradeCCC:       "CCC",
	GradeDefault:   "D",
	GradeWithdrawn: "NR",
}

var symbolGrades = func() map[string]Grade {
	m := make(map[string]Grade, len(gradeSymbols))
	for g, s := range gradeSymbols {
		m[s] = g
	}
	return m
}()

// ParseGrade converts a rating symbol (e.g. "BBB", "D", "NR") to a Grade.
func ParseGrade(symbol string) (Grade, error) {
	g, ok := symbolGrades[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown rating symbol %q", symbol)
	}
	return g, nil
}

// String returns the rating symbol for the grade
func (g Grade) String() string {
	if s, ok := gradeSymbols[g]; ok {
		return s
	}
	return "unknown"
}

// Rank returns the ordinal rank of the grade (lower = better rating)
func (g Grade) Rank() int {
	return int(g)
}

// IsAbsorbing reports whether the grade terminates an entity's history
func (g Grade) IsAbsorbing() bool {
	return g == GradeDefault || g == GradeWithdrawn
}

// IsValid reports whether the grade is on the known scale
func (g Grade) IsValid() bool {
	_, ok := gradeSymbols[g]
	return ok
}

// TransitionType identifies one of the competing causes a cause-specific
// hazard model is fit for. The taxonomy is closed: every observed state
// change maps to exactly one of these four causes.
type TransitionType int

const (
	// TransitionUpgrade is a move to a better (lower-rank) grade
	TransitionUpgrade TransitionType = iota
	// TransitionDowngrade is a move to a worse (higher-rank) grade
	TransitionDowngrade
	// TransitionDefault is a move into the absorbing default state
	TransitionDefault
	// TransitionWithdrawn is a move into the absorbing not-rated state
	TransitionWithdrawn
)

// TransitionTypes lists all competing causes in their canonical order.
// Iteration over this slice, never over maps, keeps fitting and scoring
// output deterministic.
var TransitionTypes = []TransitionType{
	TransitionUpgrade,
	TransitionDowngrade,
	TransitionDefault,
	TransitionWithdrawn,
}

// String returns the transition type name
func (t TransitionType) String() string {
	switch t {
	case TransitionUpgrade:
		return "upgrade"
	case TransitionDowngrade:
		return "downgrade"
	case TransitionDefault:
		return "default"
	case TransitionWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// ExitEvent describes how a transition episode ended
type ExitEvent int

const (
	// ExitCensored means the observation window ended with no state change
	ExitCensored ExitEvent = iota
	// ExitUpgrade means the entity moved to a better grade
	ExitUpgrade
	// ExitDowngrade means the entity moved to a worse grade
	ExitDowngrade
	// ExitDefault means the entity entered the absorbing default state
	ExitDefault
	// ExitWithdrawn means the entity entered the absorbing not-rated state
	ExitWithdrawn
)

// String returns the exit event name
func (e ExitEvent) String() string {
	switch e {
	case ExitCensored:
		return "censored"
	case ExitUpgrade:
		return "transition_to_higher_grade"
	case ExitDowngrade:
		return "transition_to_lower_grade"
	case ExitDefault:
		return "transition_to_default"
	case ExitWithdrawn:
		return "transition_to_withdrawn"
	default:
		return "unknown"
	}
}

// Transition maps the exit event to its competing cause. The second return
// is false for censored episodes, which belong to no cause.
func (e ExitEvent) Transition() (TransitionType, bool) {
	switch e {
	case ExitUpgrade:
		return TransitionUpgrade, true
	case ExitDowngrade:
		return TransitionDowngrade, true
	case ExitDefault:
		return TransitionDefault, true
	case ExitWithdrawn:
		return TransitionWithdrawn, true
	default:
		return 0, false
	}
}

// ExitEventFor classifies the observed state change from into to as one of
// the four competing causes. Moves into an absorbing grade are classified by
// destination regardless of ordinal rank.
func ExitEventFor(from, to Grade) ExitEvent {
	switch {
	case to == GradeDefault:
		return ExitDefault
	case to == GradeWithdrawn:
		return ExitWithdrawn
	case to.Rank() < from.Rank():
		return ExitUpgrade
	case to.Rank() > from.Rank():
		return ExitDowngrade
	default:
		return ExitCensored
	}
}

// StateHistoryRecord is a single dated observation of an entity's rating
// state together with the covariate snapshot valid as of that date.
// Covariate values are carried forward until superseded by a later record.
type StateHistoryRecord struct {
	EntityID   string             `json:"entity_id"`
	Date       time.Time          `json:"date"`
	Grade      Grade              `json:"grade"`
	Covariates map[string]float64 `json:"covariates"`
}

// TransitionEpisode is one state-entry-to-exit interval for an entity.
// Episodes for an entity are contiguous and non-overlapping: the exit date
// of one equals the entry date of the next. Immutable once built.
type TransitionEpisode struct {
	EntityID   string             `json:"entity_id"`
	EntryDate  time.Time          `json:"entry_date"`
	ExitDate   time.Time          `json:"exit_date"`
	EntryGrade Grade              `json:"entry_grade"`
	Exit       ExitEvent          `json:"exit_event"`
	Covariates map[string]float64 `json:"covariates_at_entry"`
}

// DurationDays returns the episode length in days
func (e TransitionEpisode) DurationDays() float64 {
	return e.ExitDate.Sub(e.EntryDate).Hours() / 24.0
}

// IsValid checks the episode invariants
func (e TransitionEpisode) IsValid() bool {
	return e.EntityID != "" && e.ExitDate.After(e.EntryDate) &&
		!e.EntryGrade.IsAbsorbing() && e.EntryGrade.IsValid()
}

// EntityState is an entity's current rating state and covariate vector,
// the scoring-time counterpart of a StateHistoryRecord.
type EntityState struct {
	EntityID   string             `json:"entity_id"`
	Grade      Grade              `json:"grade"`
	Covariates map[string]float64 `json:"covariates"`
}

// RiskLevel is the qualitative band assigned to an overall state-change
// probability.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "HIGH"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskLow     RiskLevel = "LOW"
	RiskVeryLow RiskLevel = "VERY_LOW"
)

// ClassifyRisk maps an overall change probability to its risk band
func ClassifyRisk(overall float64) RiskLevel {
	switch {
	case overall >= 0.30:
		return RiskHigh
	case overall >= 0.10:
		return RiskMedium
	case overall >= 0.05:
		return RiskLow
	default:
		return RiskVeryLow
	}
}

// RiskAssessment is the finite-horizon output of the scorer for one entity
type RiskAssessment struct {
	EntityID          string                     `json:"entity_id"`
	Grade             Grade                      `json:"grade"`
	HorizonDays       int                        `json:"horizon_days"`
	PerTransition     map[TransitionType]float64 `json:"per_transition_probability"`
	CumulativeHazards map[TransitionType]float64 `json:"cumulative_hazards"`
	// Unavailable lists transition types the bank could not fit
	// (insufficient events); their probabilities are absent, not zero.
	Unavailable []TransitionType `json:"unavailable,omitempty"`
	Overall     float64          `json:"overall_probability"`
	Level       RiskLevel        `json:"risk_level"`
}

// BaselineHazard is a non-decreasing step function of elapsed days since
// episode entry, zero at time zero by construction.
type BaselineHazard struct {
	times []float64
	cum   []float64
}

// At evaluates the cumulative baseline hazard at t days
func (b BaselineHazard) At(t float64) float64 {
	if t <= 0 || len(b.times) == 0 {
		return 0
	}
	// last step time <= t
	idx := sort.SearchFloat64s(b.times, t)
	if idx < len(b.times) && b.times[idx] == t {
		return b.cum[idx]
	}
	if idx == 0 {
		return 0
	}
	return b.cum[idx-1]
}

// Steps returns copies of the step times and cumulative values
func (b BaselineHazard) Steps() (times, cum []float64) {
	times = make([]float64, len(b.times))
	cum = make([]float64, len(b.cum))
	copy(times, b.times)
	copy(cum, b.cum)
	return times, cum
}

// IsValid checks that the step function is non-decreasing and non-negative
func (b BaselineHazard) IsValid() bool {
	if len(b.times) != len(b.cum) {
		return false
	}
	prevT, prevC := 0.0, 0.0
	for i := range b.times {
		if b.times[i] <= prevT || b.cum[i] < prevC {
			return false
		}
		prevT, prevC = b.times[i], b.cum[i]
	}
	return true
}

// HazardModel is one fitted cause-specific proportional-hazards model.
// Owned by the bank that fit it; read-only once fitting completes.
type HazardModel struct {
	Transition TransitionType `json:"transition_type"`
	// Covariates is the ordered list of covariate names the coefficient
	// vector is aligned to. Low-variance covariates screened out during
	// fitting are listed in Dropped and absent here.
	Covariates   []string       `json:"covariates"`
	Coefficients []float64      `json:"coefficients"`
	Baseline     BaselineHazard `json:"-"`
	Dropped      []string       `json:"dropped_covariates,omitempty"`
	Events       int            `json:"n_events"`
	Observations int            `json:"n_observations"`
}

// LinearPredictor computes the log hazard ratio beta·x for a covariate
// vector keyed by name. Names absent from the map contribute zero.
func (m *HazardModel) LinearPredictor(covariates map[string]float64) float64 {
	lp := 0.0
	for i, name := range m.Covariates {
		lp += m.Coefficients[i] * covariates[name]
	}
	return lp
}

// CumulativeHazard evaluates the cause-specific cumulative hazard at
// horizon t days for the given covariate vector.
func (m *HazardModel) CumulativeHazard(t float64, covariates map[string]float64) float64 {
	return m.Baseline.At(t) * expSafe(m.LinearPredictor(covariates))
}

// Constants for fitting defaults
const (
	// DefaultPenalizer is the ridge penalty guarding against separation
	DefaultPenalizer = 0.01
	// DefaultMinEvents is the minimum non-censored episode count per
	// transition type below which the fit is refused
	DefaultMinEvents = 5
	// DefaultMaxIterations bounds the Newton-Raphson solver
	DefaultMaxIterations = 50
	// DefaultTolerance is the convergence tolerance on the gradient norm
	DefaultTolerance = 1e-7
	// MinCovariateVariance is the screening threshold below which a
	// covariate is treated as constant and excluded from the fit
	MinCovariateVariance = 1e-10
)
