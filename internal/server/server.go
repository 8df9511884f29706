// Package server exposes tuning runs over a JSON REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/gotune/internal/config"
	"github.com/me/gotune/internal/scheduler"
	"github.com/me/gotune/internal/store"
)

// Server is the gotune REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	manager   *scheduler.Manager
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, mgr *scheduler.Manager, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		manager:   mgr,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Post("/abort", s.handleAbortRun)
				r.Get("/trials", s.handleListTrials)
				r.Get("/best", s.handleBestTrial)
				r.Get("/ranking", s.handleRanking)
				r.Get("/events", s.handleRunEvents)
			})
		})

		r.Get("/trials/{id}/metrics", s.handleTrialMetrics)
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, map[string]any{
		"name":    "gotune",
		"version": Version,
		"endpoints": map[string]string{
			"runs":    "/api/v1/runs",
			"trials":  "/api/v1/runs/{id}/trials",
			"best":    "/api/v1/runs/{id}/best",
			"ranking": "/api/v1/runs/{id}/ranking",
			"events":  "/api/v1/runs/{id}/events",
			"metrics": "/api/v1/trials/{id}/metrics",
			"health":  "/healthz",
		},
	})
}
