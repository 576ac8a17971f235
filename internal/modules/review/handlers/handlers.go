// Package handlers provides HTTP handlers for outcome tracking and reviews.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/review"
)

// Handler handles review HTTP requests
type Handler struct {
	service *review.Service
	log     zerolog.Logger
}

// NewHandler creates a new review handler
func NewHandler(service *review.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "review").Logger(),
	}
}

// RegisterRoutes registers all review routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/review", func(r chi.Router) {
		r.Get("/weekly", h.HandleWeekly)
		r.Get("/monthly", h.HandleMonthly)
		r.Get("/signals/{id}", h.HandleSignalOutcome)
		r.Get("/alerts/{id}", h.HandleAlertOutcome)
	})
}

// HandleWeekly returns the review of one week
func (h *Handler) HandleWeekly(w http.ResponseWriter, r *http.Request) {
	n, ok := h.offset(w, r, "weeks_ago")
	if !ok {
		return
	}
	rv, err := h.service.Weekly(r.Context(), n)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rv)
}

// HandleMonthly returns the review of one calendar month
func (h *Handler) HandleMonthly(w http.ResponseWriter, r *http.Request) {
	n, ok := h.offset(w, r, "months_ago")
	if !ok {
		return
	}
	rv, err := h.service.Monthly(r.Context(), n)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rv)
}

// HandleSignalOutcome returns what the price did after a signal
func (h *Handler) HandleSignalOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	out, err := h.service.SignalOutcome(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleAlertOutcome returns what the price did after an alert
func (h *Handler) HandleAlertOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	out, err := h.service.AlertOutcome(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) offset(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("Review failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
