// Package master implements the receiving end of the broker transport: an
// HTTP endpoint that accepts relayed returns and minion events, stores them
// in the job cache and exposes them for lookup.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/jobcache"
	"github.com/mattjoyce/warden/internal/transport"
)

// Store persists what the master receives.
type Store interface {
	SaveReturn(ctx context.Context, r job.Result) error
	SaveEvent(ctx context.Context, minionID, tag string, data map[string]any) (int64, error)
	Returns(ctx context.Context, jid string) ([]jobcache.Record, error)
}

// Config holds master server configuration.
type Config struct {
	Listen string
	// MaxBodyBytes caps one request body.
	MaxBodyBytes int64
}

// Server is the master HTTP receiver.
type Server struct {
	config    Config
	store     Store
	logger    *slog.Logger
	metrics   *Metrics
	server    *http.Server
	startedAt time.Time
	now       func() time.Time
}

// New creates a master server.
func New(config Config, store Store, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 8 << 20
	}
	return &Server{
		config:    config,
		store:     store,
		logger:    logger,
		metrics:   NewMetrics(),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Start serves until ctx is done (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("master server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("master server shutting down")
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

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())
	r.Post(transport.ReturnPath, s.handleReturn)
	r.Get("/v1/jobs/{jid}", s.handleGetJob)

	return r
}

// loggingMiddleware logs and counts HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.observeRequest(r.Method, route, ww.Status(), time.Since(start))
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
