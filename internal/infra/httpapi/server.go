// Package httpapi exposes the engine over HTTP and WebSocket.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/domain/execution"
)

// Engine is the part of the coordinator the API serves.
type Engine interface {
	Submit(ctx context.Context, sub execution.Submission) (string, error)
	Status(ctx context.Context, runID string) (execution.Run, error)
	Result(ctx context.Context, runID string) (*execution.Result, error)
	Cancel(ctx context.Context, runID string) (coordinator.CancelOutcome, error)
	Watch(ctx context.Context, runID string) (<-chan struct{}, error)
}

// EnvironmentLister lists the registered environments.
type EnvironmentLister interface {
	List() []execution.Environment
}

// RunLister lists stored runs of one owner.
type RunLister interface {
	ListRunsByOwner(ctx context.Context, owner string, limit int) ([]execution.Run, error)
}

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP front of the engine.
type Server struct {
	engine  Engine
	envs    EnvironmentLister
	runs    RunLister
	limiter *RateLimiter
	log     *zerolog.Logger
	router  chi.Router
	http    *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithRunLister enables GET /api/runs?owner=.
func WithRunLister(runs RunLister) Option {
	return func(s *Server) { s.runs = runs }
}

// WithRateLimiter limits submissions per client.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// New creates a Server.
func New(engine Engine, envs EnvironmentLister, log *zerolog.Logger, opts ...Option) *Server {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	s := &Server{
		engine: engine,
		envs:   envs,
		log:    log,
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/environments", s.handleListEnvironments)

		r.Route("/runs", func(r chi.Router) {
			r.With(s.rateLimit).Post("/", s.handleSubmit)
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/result", s.handleGetResult)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Get("/{id}/watch", s.handleWatch)
		})
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
