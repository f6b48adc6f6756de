package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/metrics"
	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
	"github.com/JakeFAU/radio-playlist-archiver/internal/runner"
	"github.com/JakeFAU/radio-playlist-archiver/internal/status"
)

const defaultRequestTimeout = 30 * time.Second

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ShowCounter counts stored shows per target.
type ShowCounter interface {
	CountShows(ctx context.Context, targetName string) (int, error)
}

// BreakerReporter reports the state of the source circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// CycleSubmitter queues crawl cycles and lists the configured targets.
type CycleSubmitter interface {
	Submit(req runner.Request) error
	Targets() []playlist.Target
}

// Config controls Server behavior.
type Config struct {
	// FilesDir is served read-only under /files/, CSV files only. Empty
	// disables the route.
	FilesDir       string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the runner, tracker, and store.
type Server struct {
	router  chi.Router
	store   ShowCounter
	pinger  Pinger
	cycles  CycleSubmitter
	tracker *status.Tracker
	breaker BreakerReporter
	clock   playlist.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store ShowCounter,
	pinger Pinger,
	cycles CycleSubmitter,
	tracker *status.Tracker,
	breaker BreakerReporter,
	clock playlist.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		store:   store,
		pinger:  pinger,
		cycles:  cycles,
		tracker: tracker,
		breaker: breaker,
		clock:   clock,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/targets", s.listTargets)
		r.Post("/backfill", s.submitBackfill)
	})

	if cfg.FilesDir != "" {
		files := http.StripPrefix("/files", http.FileServer(csvFileSystem{root: http.Dir(cfg.FilesDir)}))
		r.Get("/files", http.RedirectHandler("/files/", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/files/*", files.ServeHTTP)
		r.Head("/files/*", files.ServeHTTP)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
