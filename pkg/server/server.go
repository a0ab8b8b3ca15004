// Package server provides the HTTP server of the proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/proxy/handlers"
	"github.com/hzcy/chatbetter2api/pkg/proxy/middleware"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/health"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

// FilesPrefix is where localized images are served.
const FilesPrefix = "/files/"

// Deps are the components the server routes to. Nil fields leave the
// matching routes unregistered.
type Deps struct {
	// Completer serves POST /v1/chat/completions.
	Completer handlers.Completer

	// Models serves GET /v1/models.
	Models handlers.ModelSource

	// Admin serves /api/tokens.
	Admin http.Handler

	// FilesDir is served under /files/ without authentication.
	FilesDir string

	// Health serves /health and /ready.
	Health *health.Checker

	// Version is reported by /version.
	Version health.VersionInfo

	// Metrics serves the scrape endpoint at MetricsPath.
	Metrics     *metrics.Collector
	MetricsPath string
}

// Server is the client-facing HTTP server.
type Server struct {
	config     config.ServerConfig
	auth       config.AuthConfig
	deps       Deps
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server.
func NewServer(cfg config.ServerConfig, auth config.AuthConfig, deps Deps) *Server {
	return &Server{
		config: cfg,
		auth:   auth,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server, waiting at most ShutdownTimeout
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		httpServer := s.httpServer
		running := s.isRunning
		s.mu.RUnlock()
		if !running || httpServer == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.routes()

	handler = middleware.CORSMiddleware(s.config.CORS)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// routes registers every endpoint. API routes require the admin password;
// health, metrics and files are public.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.AdminAuthMiddleware(s.auth.AdminPassword)

	if s.deps.Completer != nil {
		chat := handlers.NewChatHandler(s.deps.Completer)
		mux.Handle("POST /v1/chat/completions", auth(middleware.TimeoutMiddleware(s.config.WriteTimeout)(chat)))
	}

	if s.deps.Models != nil {
		mux.Handle("GET /v1/models", auth(handlers.NewModelsHandler(s.deps.Models)))
	}

	if s.deps.Admin != nil {
		admin := auth(s.deps.Admin)
		mux.Handle(handlers.AdminPrefix, admin)
		mux.Handle(handlers.AdminPrefix+"/", admin)
	}

	if s.deps.FilesDir != "" {
		mux.Handle("GET "+FilesPrefix, http.StripPrefix(FilesPrefix, handlers.NewFilesHandler(s.deps.FilesDir)))
	}

	if s.deps.Health != nil {
		health.Register(mux, s.deps.Health, s.deps.Version)
	}

	if s.deps.Metrics != nil && s.deps.MetricsPath != "" {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics.Handler())
	}

	return mux
}
