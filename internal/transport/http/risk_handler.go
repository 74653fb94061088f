package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "ratingrisk/internal/errors"
	"ratingrisk/internal/hazard"
	"ratingrisk/internal/services"
)

// RiskHandler handles training, scoring, and alert requests with RFC 7807
// error responses.
type RiskHandler struct {
	service      *services.RiskService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(service *services.RiskService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RiskHandler {
	return &RiskHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "risk")),
		errorHandler: errorHandler,
	}
}

// Routes returns the risk routes
func (h *RiskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/train", h.Train)
	r.Get("/bank", h.BankInfo)
	r.Post("/score", h.Score)
	r.Post("/portfolio", h.ScorePortfolio)
	r.Post("/alert", h.CheckAlert)

	return r
}

// Train handles POST /api/risk/train
func (h *RiskHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	records, err := toRecords(req.Records)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	info, err := h.service.Train(r.Context(), records)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// BankInfo handles GET /api/risk/bank
func (h *RiskHandler) BankInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

// Score handles POST /api/risk/score
func (h *RiskHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	state, err := req.State.toState()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	assessment, err := h.service.Score(r.Context(), state, req.HorizonDays)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, assessment)
}

// ScorePortfolio handles POST /api/risk/portfolio
func (h *RiskHandler) ScorePortfolio(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	states := make([]hazard.EntityState, 0, len(req.States))
	for _, p := range req.States {
		state, err := p.toState()
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		states = append(states, state)
	}

	assessments, err := h.service.ScorePortfolio(r.Context(), states, req.HorizonDays)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"horizon_days": req.HorizonDays,
		"requested":    len(req.States),
		"scored":       len(assessments),
		"assessments":  assessments,
	})
}

// CheckAlert handles POST /api/risk/alert
func (h *RiskHandler) CheckAlert(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	state, err := req.State.toState()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	signal, err := h.service.CheckAlert(r.Context(), state, req.HorizonDays, req.Threshold)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, signal)
}
