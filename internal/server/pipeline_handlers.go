package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// handlePipelineRun starts a pass in the background. The run slot is claimed
// before responding, so an overlapping request gets 409 immediately.
func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	done, err := s.container.Runner.Trigger(context.WithoutCancel(r.Context()), date)
	if domain.IsConcurrencyConflict(err) {
		s.writeError(w, http.StatusConflict, "a pass is already running")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		if err := <-done; err != nil {
			s.log.Error().Err(err).Msg("Manual pass failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"date":   domain.DateKey(date),
	})
}

// handlePipelineRuns lists recent passes, newest first
func (s *Server) handlePipelineRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.container.RunRepo.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handlePipelineScreen scores the universe on demand without persisting
func (s *Server) handlePipelineScreen(w http.ResponseWriter, r *http.Request) {
	n := s.screenTop
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	results, err := s.container.Runner.Screen(r.Context(), date, n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return s.now(), true
	}
	date, err := time.Parse(time.DateOnly, v)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}
