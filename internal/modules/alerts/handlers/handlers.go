// Package handlers provides HTTP handlers for user actions on alerts.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/alerts"
)

// Handler handles alert HTTP requests
type Handler struct {
	repo *alerts.Repository
	now  func() time.Time
	log  zerolog.Logger
}

// NewHandler creates a new alert handler
func NewHandler(repo *alerts.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("handler", "alerts").Logger(),
	}
}

// RegisterRoutes registers all alert routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetAlert)
		r.Post("/read", h.HandleMarkRead)
		r.Post("/resolve", h.HandleResolve)
	})
}

// HandleGetAlert returns one alert
func (h *Handler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	a, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// HandleMarkRead acknowledges an alert
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	if err := h.repo.MarkRead(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.log.Info().Int64("alert_id", id).Msg("Alert marked read")
	w.WriteHeader(http.StatusNoContent)
}

// HandleResolve closes an alert. A later pass may open a new one if the
// condition still holds.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Resolve(r.Context(), id, h.now()); err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.log.Info().Int64("alert_id", id).Msg("Alert resolved by user")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) alertID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid alert id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
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
