package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/engine"
	"mercator-hq/themis/pkg/override"
	"mercator-hq/themis/pkg/policy"
	"mercator-hq/themis/pkg/server/middleware"
	"mercator-hq/themis/pkg/telemetry/health"
	"mercator-hq/themis/pkg/telemetry/metrics"
)

// Server is the HTTP front of the decision service: the decision endpoint,
// the administrative policy and override APIs, stats, health, and metrics.
type Server struct {
	config     *config.ServerConfig
	engine     *engine.Engine
	policies   *policy.Manager
	overrides  *override.Store
	recorder   *audit.Recorder
	auditStore audit.Storage
	checker    *health.Checker
	collector  *metrics.Collector
	metricsCfg *config.MetricsConfig

	httpServer   *http.Server
	shutdownOnce sync.Once
	logger       *slog.Logger
}

// NewServer creates the HTTP server over the assembled components.
func NewServer(
	cfg *config.ServerConfig,
	eng *engine.Engine,
	policies *policy.Manager,
	overrides *override.Store,
	recorder *audit.Recorder,
	auditStore audit.Storage,
	checker *health.Checker,
	collector *metrics.Collector,
	metricsCfg *config.MetricsConfig,
) *Server {
	return &Server{
		config:     cfg,
		engine:     eng,
		policies:   policies,
		overrides:  overrides,
		recorder:   recorder,
		auditStore: auditStore,
		checker:    checker,
		collector:  collector,
		metricsCfg: metricsCfg,
		logger:     slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled, a
// shutdown signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting decision server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server, letting in-flight requests finish
// within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.logger.Info("decision server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /decide", s.handleDecide)

	mux.HandleFunc("GET /policy/active", s.handlePolicyActive)
	mux.HandleFunc("GET /policy/history", s.handlePolicyHistory)
	mux.HandleFunc("GET /policy/definitions", s.handlePolicyDefinitions)
	mux.HandleFunc("POST /policy/activate", s.handlePolicyActivate)

	mux.HandleFunc("GET /overrides", s.handleOverrideList)
	mux.HandleFunc("POST /overrides", s.handleOverridePut)
	mux.HandleFunc("DELETE /overrides/{resource_key}", s.handleOverrideDelete)

	mux.HandleFunc("GET /stats/summary", s.handleStatsSummary)
	mux.HandleFunc("GET /stats/violations", s.handleStatsViolations)

	mux.Handle("GET /health", s.checker.Handler())
	if s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(s.config.WriteTimeout)(handler)
	handler = middleware.CORS(&s.config.CORS)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)

	return handler
}
