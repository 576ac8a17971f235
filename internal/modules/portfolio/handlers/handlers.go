// Package handlers provides HTTP handlers for portfolios, their health and alerts.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/risk"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	repo   *portfolio.Repository
	risk   *risk.Repository
	alerts *alerts.Repository
	scorer *health.Scorer
	log    zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	repo *portfolio.Repository,
	riskRepo *risk.Repository,
	alertRepo *alerts.Repository,
	scorer *health.Scorer,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:   repo,
		risk:   riskRepo,
		alerts: alertRepo,
		scorer: scorer,
		log:    log.With().Str("handler", "portfolio").Logger(),
	}
}

// HealthResponse is the latest risk snapshot with its classification
type HealthResponse struct {
	Metrics domain.RiskMetrics `json:"metrics"`
	Level   health.Level       `json:"level"`
}

// HandleListPortfolios returns every portfolio
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.Portfolios(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetHoldings returns the purchase lots of one portfolio
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	holdings, err := h.repo.Holdings(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, holdings)
}

// HandleGetHealth returns the latest health snapshot
func (h *Handler) HandleGetHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	m, err := h.risk.Latest(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "no health snapshot yet")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Metrics: *m, Level: h.scorer.Classify(m.HealthScore)})
}

// HandleGetRiskHistory returns stored snapshots, newest first
func (h *Handler) HandleGetRiskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	list, err := h.risk.History(r.Context(), id, queryInt(r, "limit", 30))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetAlerts returns the alerts of one portfolio; ?all=true includes resolved ones
func (h *Handler) HandleGetAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	list, err := h.alerts.List(r.Context(), id, all, queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) portfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Helper methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
