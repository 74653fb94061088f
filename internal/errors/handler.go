package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"ratingrisk/internal/hazard"
)

// ErrorHandler provides centralized error handling for the HTTP boundary
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details. Domain
// errors from the hazard engine map to their own problem types so callers
// can distinguish a bad request from a model that could not be fit.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var invalidHorizon *hazard.InvalidHorizonError
	if errors.As(err, &invalidHorizon) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeInvalidHorizon,
			"Invalid Horizon",
			invalidHorizon.Error(),
			r.URL.Path,
		).WithExtension("horizon_days", invalidHorizon.HorizonDays)
	}

	var mismatch *hazard.CovariateMismatchError
	if errors.As(err, &mismatch) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeCovariateMismatch,
			"Covariate Mismatch",
			mismatch.Error(),
			r.URL.Path,
		).WithExtension("missing", mismatch.Missing).
			WithExtension("unexpected", mismatch.Unexpected)
	}

	var malformed *hazard.MalformedHistoryError
	if errors.As(err, &malformed) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeMalformedHistory,
			"Malformed State History",
			malformed.Error(),
			r.URL.Path,
		).WithExtension("entity_id", malformed.EntityID).
			WithExtension("record_index", malformed.Index)
	}

	var insufficient *hazard.InsufficientEventsError
	if errors.As(err, &insufficient) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInsufficientEvents,
			"Insufficient Events",
			insufficient.Error(),
			r.URL.Path,
		).WithExtension("transition", insufficient.Transition.String()).
			WithExtension("events", insufficient.Events).
			WithExtension("minimum", insufficient.Minimum)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST":
		problemType = TypeValidation
	case "INVALID_HORIZON":
		problemType = TypeInvalidHorizon
	case "COVARIATE_MISMATCH":
		problemType = TypeCovariateMismatch
	case "MALFORMED_HISTORY":
		problemType = TypeMalformedHistory
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "BANK_NOT_FOUND":
		problemType = TypeBankNotFitted
	case "CONFLICT":
		problemType = TypeConflict
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "SERVICE_UNAVAILABLE":
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns an RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
