// Package handlers provides HTTP handlers for screening results.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/screening"
)

// Handler handles screening HTTP requests
type Handler struct {
	repo *screening.Repository
	topN int
	log  zerolog.Logger
}

// NewHandler creates a new screening handler. topN is the default list size.
func NewHandler(repo *screening.Repository, topN int, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		topN: topN,
		log:  log.With().Str("handler", "screening").Logger(),
	}
}

// RegisterRoutes registers all screening routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/screening", func(r chi.Router) {
		r.Get("/top", h.HandleGetTop) // ?n=5&date=2024-03-01
	})
}

// TopResponse is a ranked list for one date
type TopResponse struct {
	Date    string                   `json:"date,omitempty"`
	Results []domain.ScreeningResult `json:"results"`
}

// HandleGetTop returns the best-scored tickers of a date, the latest stored
// date by default
func (h *Handler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	n := h.topN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}

	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := database.ParseDate(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	} else {
		latest, ok, err := h.repo.LatestDate(r.Context())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			h.writeJSON(w, http.StatusOK, TopResponse{Results: []domain.ScreeningResult{}})
			return
		}
		date = latest
	}

	results, err := h.repo.Top(r.Context(), date, n)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []domain.ScreeningResult{}
	}
	h.writeJSON(w, http.StatusOK, TopResponse{Date: database.FormatDate(date), Results: results})
}

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
