// Package server exposes the run ledger, the error journal and the prober's
// metrics over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/galaxyprobe/internal/journal"
	"github.com/me/galaxyprobe/internal/logging"
	"github.com/me/galaxyprobe/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the read-only status API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	store     store.Store
	journal   *journal.Journal // optional; journal endpoints answer 404 without it
	service   string           // optional; the execution service URL
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithJournal serves journal files from j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithServiceURL reports the execution service the ledger was written against.
func WithServiceURL(u string) Option {
	return func(s *Server) {
		s.service = u
	}
}

// New creates a new Server with all routes registered.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Server {
	logger = logging.OrDiscard(logger)
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
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

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/tools", s.handleListTools)
				r.Get("/jobs", s.handleListJobs)
			})
		})

		r.Get("/journal/{tool}", s.handleGetJournal)
	})
}
