package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
)

// Jobs is the part of the orchestrator the API needs.
type Jobs interface {
	Submit(ctx context.Context, sub pipeline.Submission) (string, error)
	Status(ctx context.Context, jobID string) (jobstate.Status, error)
}

// ImporterLister lists the configured importers.
type ImporterLister interface {
	Infos() []importer.Info
}

// QueueDepther reports how many stage tasks are waiting.
type QueueDepther interface {
	Depth(ctx context.Context) (int, error)
}

var (
	_ Jobs           = (*pipeline.Orchestrator)(nil)
	_ ImporterLister = (*importer.Registry)(nil)
)

// Config holds API server configuration
type Config struct {
	Listen string
	// MaxUploadBytes caps each uploaded file. Zero or less disables the cap.
	MaxUploadBytes int64
	// SubmitRate is submissions per second across all clients. Zero disables
	// limiting.
	SubmitRate  float64
	SubmitBurst int
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	jobs      Jobs
	importers ImporterLister
	queue     QueueDepther
	events    *events.Hub
	limiter   *rate.Limiter
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, jobs Jobs, importers ImporterLister, queue QueueDepther, hub *events.Hub) *Server {
	s := &Server{
		config:    config,
		jobs:      jobs,
		importers: importers,
		queue:     queue,
		events:    hub,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if config.SubmitRate > 0 {
		burst := config.SubmitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.SubmitRate), burst)
	}
	return s
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 2 * time.Minute, // large multipart uploads
		// No WriteTimeout: status streams stay open until the job completes.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/private/api/v1", func(r chi.Router) {
		r.With(s.rateLimit).Post("/validate", s.handleValidate)
		r.Get("/status", s.handleStatus)
		r.Post("/status", s.handleStatus)
		r.Get("/status/{id}/stream", s.handleStream)
		r.Get("/metadata", s.handleMetadata)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// rateLimit rejects submissions beyond the configured rate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "too many submissions, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
