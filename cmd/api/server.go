package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/smart-import/pkg/config"
	"github.com/FACorreiaa/smart-import/pkg/interceptors"
	"github.com/FACorreiaa/smart-import/pkg/metrics"
)

// Server is the HTTP API server.
type Server struct {
	deps       *Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the server and mounts every route.
func NewServer(deps *Dependencies) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(interceptors.Logging(s.logger))
	s.router.Use(interceptors.CORS(s.deps.Config.Server.AllowedOrigins))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", s.health)

	if s.deps.Registry != nil {
		s.router.Handle("/metrics", metrics.Handler(s.deps.Registry))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(interceptors.Auth(s.deps.TokenManager))
		r.Use(s.deps.RateLimiter.Middleware)
		s.deps.ImportHandler.Routes(r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Health(ctx); err != nil {
			s.logger.Warn("health check failed", slog.Any("error", err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

const (
	minWriteTimeout    = 5 * time.Minute
	writeTimeoutMargin = time.Minute
)

// writeTimeout covers a confirm of MaxRows rows where every batch runs up
// to BatchTimeout.
func writeTimeout(cfg config.ImportConfig) time.Duration {
	if cfg.BatchSize <= 0 || cfg.BatchTimeout <= 0 || cfg.MaxRows <= 0 {
		return minWriteTimeout
	}
	batches := (cfg.MaxRows + cfg.BatchSize - 1) / cfg.BatchSize
	return max(time.Duration(batches)*cfg.BatchTimeout+writeTimeoutMargin, minWriteTimeout)
}

// Start starts the HTTP server. It blocks until Shutdown is called.
func (s *Server) Start() error {
	addr := s.deps.Config.Server.Addr()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout(s.deps.Config.Import),
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting API server", slog.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}
