// Package api provides the HTTP REST API for the question-answering workflow.
//
// Endpoints:
//
//	POST /api/v1/ask         →  run the workflow for one question
//	GET  /api/v1/ask/status  →  service and store configuration
//	GET  /health             →  liveness probe
//	GET  /ready              →  readiness probe (pings the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - ask.go: question endpoint and status endpoint
//   - health.go: health check endpoints
//   - middleware.go: HTTP middleware (logging, recovery)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style header trickling.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Workflow runs include several model calls, so this is generous.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Runner runs the question-answering workflow. *workflow.Engine satisfies it;
// tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Result, error)
	MaxSearches() int
	MaxRewrites() int
}

// StoreInfo describes one retrieval store in status responses.
type StoreInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	K           int    `json:"k"`
}

// Config contains the dependencies for creating the API server.
type Config struct {
	// Engine runs the workflow. Required.
	Engine Runner

	// ModelName is reported by the status endpoint.
	ModelName string

	// Stores is reported by the status endpoint.
	Stores []StoreInfo

	// Pool is pinged by the readiness probe. Optional; nil reports not ready.
	Pool *pgxpool.Pool

	// Logger defaults to a no-op logger.
	Logger log.Logger
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()

	ah := &askHandler{
		engine:    cfg.Engine,
		modelName: cfg.ModelName,
		stores:    cfg.Stores,
		logger:    logger,
	}
	ah.RegisterRoutes(mux)

	hh := NewHealthHandler(cfg.Pool, logger)
	hh.RegisterRoutes(mux)

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
