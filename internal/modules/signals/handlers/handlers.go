// Package handlers provides HTTP handlers for trading signals.
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
	"github.com/aristath/watchtower/internal/modules/signals"
)

// Handler handles signal HTTP requests
type Handler struct {
	repo *signals.Repository
	now  func() time.Time
	log  zerolog.Logger
}

// NewHandler creates a new signal handler
func NewHandler(repo *signals.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("handler", "signals").Logger(),
	}
}

// RegisterRoutes registers all signal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Get("/", h.HandleGetActive)
		r.Get("/{id}", h.HandleGetSignal)
	})
}

// HandleGetActive returns the signals still inside their validity window
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.Active(r.Context(), h.now())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []domain.Signal{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetSignal returns one signal, valid or not
func (h *Handler) HandleGetSignal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}
	s, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, s)
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
