// Package server provides the HTTP read API for watchtower.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/di"
	alerthandlers "github.com/aristath/watchtower/internal/modules/alerts/handlers"
	noticehandlers "github.com/aristath/watchtower/internal/modules/notifications/handlers"
	portfoliohandlers "github.com/aristath/watchtower/internal/modules/portfolio/handlers"
	reviewhandlers "github.com/aristath/watchtower/internal/modules/review/handlers"
	screeninghandlers "github.com/aristath/watchtower/internal/modules/screening/handlers"
	signalhandlers "github.com/aristath/watchtower/internal/modules/signals/handlers"
	simulationhandlers "github.com/aristath/watchtower/internal/modules/simulation/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Port      int
	ScreenTop int // default n for screening listings
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	container *di.Container
	started   time.Time
	now       func() time.Time
	port      int
	screenTop int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.ScreenTop <= 0 {
		cfg.ScreenTop = 20
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		container: cfg.Container,
		started:   time.Now(),
		now:       time.Now,
		port:      cfg.Port,
		screenTop: cfg.ScreenTop,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Handle("/metrics", c.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Notice stream is a long-lived websocket; it skips timeout and compression
		r.Get("/notices/stream", s.handleNoticeStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(middleware.Compress(5))

			r.Get("/health", s.handleHealth)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.handleSystemStatus)
				r.Get("/databases", s.handleDatabaseStats)
			})

			r.Route("/pipeline", func(r chi.Router) {
				r.Post("/run", s.handlePipelineRun)
				r.Get("/runs", s.handlePipelineRuns)
				r.Get("/screen", s.handlePipelineScreen)
			})

			portfoliohandlers.NewHandler(c.PortfolioRepo, c.RiskRepo, c.AlertRepo, c.HealthScorer, s.log).RegisterRoutes(r)
			alerthandlers.NewHandler(c.AlertRepo, s.log).RegisterRoutes(r)
			signalhandlers.NewHandler(c.SignalRepo, s.log).RegisterRoutes(r)
			screeninghandlers.NewHandler(c.ScreeningRepo, s.screenTop, s.log).RegisterRoutes(r)
			noticehandlers.NewHandler(c.NotificationRepo, s.log).RegisterRoutes(r)
			simulationhandlers.NewHandler(c.Simulator, s.log).RegisterRoutes(r)
			reviewhandlers.NewHandler(c.Reviewer, s.log).RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
