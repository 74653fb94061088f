package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
)

// validate is the shared request validator
var validate = validator.New(validator.WithRequiredStructEnabled())

const dateLayout = "2006-01-02"

// RecordPayload is one state-history observation on the wire
type RecordPayload struct {
	EntityID   string             `json:"entity_id" validate:"required"`
	Date       string             `json:"date" validate:"required,datetime=2006-01-02"`
	Rating     string             `json:"rating" validate:"required"`
	Covariates map[string]float64 `json:"covariates"`
}

// toRecord converts the payload to a domain record
func (p RecordPayload) toRecord() (hazard.StateHistoryRecord, error) {
	date, err := time.Parse(dateLayout, p.Date)
	if err != nil {
		return hazard.StateHistoryRecord{}, fmt.Errorf("entity %s: invalid date %q", p.EntityID, p.Date)
	}
	grade, err := hazard.ParseGrade(p.Rating)
	if err != nil {
		return hazard.StateHistoryRecord{}, fmt.Errorf("entity %s: %w", p.EntityID, err)
	}
	return hazard.StateHistoryRecord{
		EntityID:   p.EntityID,
		Date:       date,
		Grade:      grade,
		Covariates: p.Covariates,
	}, nil
}

func toRecords(payloads []RecordPayload) ([]hazard.StateHistoryRecord, error) {
	records := make([]hazard.StateHistoryRecord, 0, len(payloads))
	for _, p := range payloads {
		record, err := p.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// StatePayload is an entity's current state on the wire
type StatePayload struct {
	EntityID   string             `json:"entity_id" validate:"required"`
	Rating     string             `json:"rating" validate:"required"`
	Covariates map[string]float64 `json:"covariates"`
}

func (p StatePayload) toState() (hazard.EntityState, error) {
	grade, err := hazard.ParseGrade(p.Rating)
	if err != nil {
		return hazard.EntityState{}, fmt.Errorf("entity %s: %w", p.EntityID, err)
	}
	return hazard.EntityState{
		EntityID:   p.EntityID,
		Grade:      grade,
		Covariates: p.Covariates,
	}, nil
}

// TrainRequest carries the record corpus for a training run
type TrainRequest struct {
	Records []RecordPayload `json:"records" validate:"required,min=2,dive"`
}

// Bind implements render.Binder
func (r *TrainRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// ScoreRequest asks for one entity's finite-horizon assessment. Horizon
// validity is the engine's call, not the binder's, so the response carries
// the dedicated problem type.
type ScoreRequest struct {
	State       StatePayload `json:"state" validate:"required"`
	HorizonDays int          `json:"horizon_days"`
}

// Bind implements render.Binder
func (r *ScoreRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// PortfolioRequest scores a batch of entities at one horizon
type PortfolioRequest struct {
	States      []StatePayload `json:"states" validate:"required,min=1,dive"`
	HorizonDays int            `json:"horizon_days"`
}

// Bind implements render.Binder
func (r *PortfolioRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// AlertRequest checks one entity against an alert threshold
type AlertRequest struct {
	State       StatePayload `json:"state" validate:"required"`
	HorizonDays int          `json:"horizon_days"`
	Threshold   float64      `json:"threshold"`
}

// Bind implements render.Binder
func (r *AlertRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// WindowPayload is a calendar interval on the wire, half-open [start, end)
type WindowPayload struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

func (p WindowPayload) toWindow() (backtest.Window, error) {
	start, err := time.Parse(dateLayout, p.Start)
	if err != nil {
		return backtest.Window{}, fmt.Errorf("invalid window start %q", p.Start)
	}
	end, err := time.Parse(dateLayout, p.End)
	if err != nil {
		return backtest.Window{}, fmt.Errorf("invalid window end %q", p.End)
	}
	return backtest.Window{Start: start, End: end}, nil
}

// BacktestRequest carries a corpus and optional overrides for a backtest
// run. Zero-valued fields fall back to the server configuration.
type BacktestRequest struct {
	Records        []RecordPayload `json:"records" validate:"required,min=4,dive"`
	HorizonDays    int             `json:"horizon_days"`
	TrainDays      int             `json:"train_days"`
	ValidationDays int             `json:"validation_days"`
	TestDays       int             `json:"test_days"`
	StepDays       int             `json:"step_days"`
	StressPeriods  []WindowPayload `json:"stress_periods" validate:"omitempty,dive"`
}

// Bind implements render.Binder
func (r *BacktestRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}
