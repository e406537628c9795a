// Package api exposes the backend node over HTTP: log retrieval and export
// for viewers, live entry streaming over SSE, and a boundary-validated
// command ingress.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/relaybus/internal/channel"
	"github.com/mattjoyce/relaybus/internal/log"
	"github.com/mattjoyce/relaybus/internal/logstore"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on every route except /healthz.
	// Empty means auth is disabled (local development).
	APIKey string
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	store     *logstore.Store
	sink      channel.Sink
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server over the given store, handing inbound commands
// to sink.
func New(config Config, store *logstore.Store, sink channel.Sink) *Server {
	return &Server{
		config:    config,
		store:     store,
		sink:      sink,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
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

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/export", s.handleExport)
		r.Post("/logs/clear", s.handleClear)
		r.Post("/commands", s.handleCommand)
		r.Get("/events", s.handleEvents)
	})

	return r
}
