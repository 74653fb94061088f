package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingrisk/internal/hazard"
)

func testHandler() *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
}

func TestErrorToProblem_DomainErrors(t *testing.T) {
	h := testHandler()
	r := httptest.NewRequest(http.MethodPost, "/api/score", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "invalid horizon",
			err:        &hazard.InvalidHorizonError{HorizonDays: -5},
			wantStatus: http.StatusBadRequest,
			wantType:   TypeInvalidHorizon,
		},
		{
			name:       "covariate mismatch",
			err:        &hazard.CovariateMismatchError{Missing: []string{"leverage"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeCovariateMismatch,
		},
		{
			name:       "malformed history",
			err:        &hazard.MalformedHistoryError{EntityID: "E1", Index: 3, Reason: "duplicate observation date"},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeMalformedHistory,
		},
		{
			name:       "insufficient events",
			err:        &hazard.InsufficientEventsError{Transition: hazard.TransitionDefault, Events: 2, Minimum: 5},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeInsufficientEvents,
		},
		{
			name:       "wrapped domain error still maps",
			err:        fmt.Errorf("scoring entity: %w", &hazard.InvalidHorizonError{HorizonDays: 0}),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeInvalidHorizon,
		},
		{
			name:       "context cancellation",
			err:        context.Canceled,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("something broke"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/score", problem.Instance)
		})
	}
}

func TestErrorToProblem_APIError(t *testing.T) {
	h := testHandler()
	r := httptest.NewRequest(http.MethodGet, "/api/bank", nil)

	problem := h.ErrorToProblem(ErrBankNotFound, r)
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, TypeBankNotFitted, problem.Type)
	assert.Equal(t, "BANK_NOT_FOUND", problem.Extensions["error_code"])
}

func TestProblemDetailsMarshalJSON(t *testing.T) {
	problem := NewProblemDetails(400, TypeValidation, "Validation Failed", "bad field", "/api/score").
		WithExtension("field", "horizon_days")

	data, err := problem.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"/errors/validation"`)
	assert.Contains(t, string(data), `"field":"horizon_days"`)
	assert.Contains(t, string(data), `"status":400`)
}

func TestHandleError_RendersProblem(t *testing.T) {
	h := testHandler()
	r := httptest.NewRequest(http.MethodPost, "/api/score", nil)
	w := httptest.NewRecorder()

	h.HandleError(w, r, &hazard.InvalidHorizonError{HorizonDays: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), TypeInvalidHorizon)
}
