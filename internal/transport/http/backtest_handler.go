package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ratingrisk/internal/config"
	apierrors "ratingrisk/internal/errors"
	"ratingrisk/internal/services"
)

// BacktestHandler handles rolling-origin validation requests
type BacktestHandler struct {
	service      *services.BacktestService
	cfg          *config.Config
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(service *services.BacktestService, cfg *config.Config, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *BacktestHandler {
	return &BacktestHandler{
		service:      service,
		cfg:          cfg,
		logger:       logger.With(slog.String("handler", "backtest")),
		errorHandler: errorHandler,
	}
}

// Routes returns the backtest routes
func (h *BacktestHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Run)
	return r
}

// Run handles POST /api/backtest
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	records, err := toRecords(req.Records)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	trainDays := orDefault(req.TrainDays, h.cfg.Backtest.TrainDays)
	validationDays := orDefault(req.ValidationDays, h.cfg.Backtest.ValidationDays)
	testDays := orDefault(req.TestDays, h.cfg.Backtest.TestDays)
	stepDays := orDefault(req.StepDays, h.cfg.Backtest.StepDays)

	folds, err := h.service.FoldsForCorpus(records, trainDays, validationDays, testDays, stepDays)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	cfg := h.cfg.BacktestConfigFor(folds)
	if req.HorizonDays != 0 {
		cfg.HorizonDays = req.HorizonDays
	}
	for _, p := range req.StressPeriods {
		window, err := p.toWindow()
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		cfg.StressPeriods = append(cfg.StressPeriods, window)
	}

	result, err := h.service.Run(r.Context(), records, cfg)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
