package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleListPortfolios)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/holdings", h.HandleGetHoldings)
			r.Get("/health", h.HandleGetHealth)    // Latest snapshot plus classification
			r.Get("/risk", h.HandleGetRiskHistory) // Snapshot history
			r.Get("/alerts", h.HandleGetAlerts)    // Open alerts (?all=true for resolved too)
		})
	})
}
