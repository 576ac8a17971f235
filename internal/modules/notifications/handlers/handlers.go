// Package handlers provides HTTP handlers for dispatched notices.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/notifications"
)

// Handler handles notice HTTP requests
type Handler struct {
	repo *notifications.Repository
	now  func() time.Time
	log  zerolog.Logger
}

// NewHandler creates a new notice handler
func NewHandler(repo *notifications.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("handler", "notices").Logger(),
	}
}

// RegisterRoutes registers the notice routes. The live stream is served by
// the server package under the same prefix.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notices", h.HandleGetNotices)         // ?date=2024-03-01, today by default
	r.Get("/notices/runs/{date}", h.HandleGetRun) // Dispatch record of a date
}

// HandleGetNotices returns the notices delivered on a date
func (h *Handler) HandleGetNotices(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	list, err := h.repo.Dispatched(r.Context(), date)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetRun returns the dispatch record of a date
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	record, err := h.repo.Record(r.Context(), date)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) date(w http.ResponseWriter, raw string) (string, bool) {
	if raw == "" {
		return domain.DateKey(h.now()), true
	}
	d, err := database.ParseDate(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return domain.DateKey(d), true
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
