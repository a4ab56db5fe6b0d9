// Package api serves the process, export and match operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/logging"
	"github.com/ginjaninja78/asycuda-export/internal/pipeline"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Pinger reports backend health. *ledger.Ledger implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	pipeline *pipeline.Pipeline
	mappings []*config.MappingConfig
	health   Pinger
	validate *validator.Validate
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server. mappings must not be empty; the first one is
// used when a request names none. health may be nil.
func NewServer(p *pipeline.Pipeline, mappings []*config.MappingConfig, health Pinger) *Server {
	s := &Server{
		pipeline: p,
		mappings: mappings,
		health:   health,
		validate: validator.New(),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Post("/export", s.handleExport)
		r.Get("/match", s.handleMatch)
		r.Get("/catalog", s.handleCatalog)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestLogger logs each request with the request id attached.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
