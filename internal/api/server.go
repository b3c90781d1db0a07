// Package api serves the daemon's admin endpoints: health, live status, run
// history, manual triggering and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/pagesmith/internal/history"
)

// TriggerFunc submits a manual run request for a branch. Implementations
// return a daemon-classified error when the queue rejects the request.
type TriggerFunc func(branch string) error

// StatusFunc snapshots the daemon for GET /status.
type StatusFunc func() StatusInfo

// StatusInfo is the live daemon snapshot.
type StatusInfo struct {
	Repository    string              `json:"repository"`
	Branch        string              `json:"branch"`
	QueueDepth    int                 `json:"queue_depth"`
	QueueCapacity int                 `json:"queue_capacity"`
	ActiveRunID   string              `json:"active_run_id,omitempty"`
	LastRun       *history.RunSummary `json:"last_run,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
}

// Server is the admin HTTP server. Endpoints degrade gracefully: routes
// whose dependency was never injected answer 404 or an empty default.
type Server struct {
	Addr      string
	router    *chi.Mux
	server    *http.Server
	store     history.Store
	trigger   TriggerFunc
	status    StatusFunc
	metrics   http.Handler
	authToken string
}

// NewServer creates the admin server on addr with routes installed.
func NewServer(addr string) *Server {
	s := &Server{
		Addr:   addr,
		router: chi.NewRouter(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// WithStore injects the run history backing /api/runs.
func (s *Server) WithStore(store history.Store) *Server {
	if store != nil {
		s.store = store
	}
	return s
}

// WithTrigger injects the manual run hook backing POST /api/trigger.
func (s *Server) WithTrigger(fn TriggerFunc) *Server {
	if fn != nil {
		s.trigger = fn
	}
	return s
}

// WithStatus injects the daemon snapshot backing GET /status.
func (s *Server) WithStatus(fn StatusFunc) *Server {
	if fn != nil {
		s.status = fn
	}
	return s
}

// WithMetrics injects the /metrics handler.
func (s *Server) WithMetrics(h http.Handler) *Server {
	if h != nil {
		s.metrics = h
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/events", s.handleGetRunEvents)
		r.Post("/trigger", s.handleTrigger)
	})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve runs the server on a pre-bound listener; the daemon binds all ports
// before starting anything so port conflicts fail fast.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Error writes an error response.
func (s *Server) Error(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		s.Success(w, http.StatusOK, StatusInfo{})
		return
	}
	s.Success(w, http.StatusOK, s.status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}
