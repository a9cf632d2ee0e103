// Package api provides the HTTP REST API for the gvmscan orchestration engine.
// It exposes the scan lifecycle operations, health checks and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandlers "github.com/anstrom/gvmscan/internal/api/handlers"
	"github.com/anstrom/gvmscan/internal/api/middleware"
	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/metrics"
)

const serverShutdownTimeout = 30 * time.Second

// Server represents the API server.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	config       *config.Config
	orchestrator apihandlers.Orchestrator
	logger       *logging.Logger
	metrics      *metrics.PrometheusMetrics
	startTime    time.Time

	// stops background middleware work
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new API server instance. A nil pm gets a fresh Prometheus
// registry; a nil logger uses the package default.
func New(cfg *config.Config, o apihandlers.Orchestrator, pm *metrics.PrometheusMetrics, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if o == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if pm == nil {
		pm = metrics.NewPrometheusMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		orchestrator: o,
		logger:       logger.WithComponent("api"),
		metrics:      pm,
		startTime:    time.Now(),
		cancel:       cancel,
	}

	if err := server.setupMiddleware(ctx); err != nil {
		cancel()
		return nil, err
	}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.GetAPIAddress(),
		Handler:      server.handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	return server, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting API server",
		"address", ln.Addr().String(),
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	health := apihandlers.NewHealthHandler(s.orchestrator, s.logger)
	scans := apihandlers.NewScanHandler(s.orchestrator, s.logger)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/liveness", health.Liveness).Methods("GET")
	api.HandleFunc("/health", health.Health).Methods("GET")
	api.HandleFunc("/status", health.Status).Methods("GET")
	api.HandleFunc("/version", health.Version).Methods("GET")

	api.HandleFunc("/scans", scans.StartScan).Methods("POST")
	api.HandleFunc("/scans/{id}", scans.GetScan).Methods("GET")
	api.HandleFunc("/scans/{id}/start", scans.RetryStart).Methods("POST")
	api.HandleFunc("/scans/{id}/stop", scans.StopScan).Methods("POST")
	api.HandleFunc("/scans/{id}/findings", scans.GetFindings).Methods("GET")
	api.HandleFunc("/engine/version", scans.EngineVersion).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).
		Methods("GET")
	s.router.HandleFunc("/", s.index).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	})
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware(ctx context.Context) error {
	apiCfg := s.config.API

	clientIP, err := middleware.ClientIP(apiCfg.TrustedProxies)
	if err != nil {
		return err
	}

	s.router.Use(clientIP)
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())

	if apiCfg.RateLimit.Enabled {
		s.router.Use(middleware.RateLimit(ctx, apiCfg.RateLimit.RequestsPerSecond, apiCfg.RateLimit.BurstSize, s.logger))
	}
	if len(apiCfg.APIKeyHashes) > 0 {
		s.router.Use(middleware.Authentication(apiCfg.APIKeyHashes, s.logger))
	}

	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.BodyLimit(apiCfg.MaxRequestSize))
	s.router.Use(middleware.RequestTimeout(s.config.Engine.RequestTimeout))
	return nil
}

// handler wraps the router with CORS. CORS sits outside the router so
// preflight requests are answered for every route.
func (s *Server) handler() http.Handler {
	cors := s.config.API.CORS
	if !cors.Enabled {
		return s.router
	}

	return handlers.CORS(
		handlers.AllowedOrigins(cors.AllowedOrigins),
		handlers.AllowedMethods(cors.AllowedMethods),
		handlers.AllowedHeaders(cors.AllowedHeaders),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(s.router)
}

// index returns API information for root requests.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "gvmscan API",
		"version": "v1",
		"endpoints": map[string]string{
			"scans":    "/api/v1/scans",
			"engine":   "/api/v1/engine/version",
			"liveness": "/api/v1/liveness",
			"health":   "/api/v1/health",
			"metrics":  "/metrics",
		},
		"uptime": time.Since(s.startTime).String(),
	})
}

// ErrorResponse represents a standard API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	s.writeJSON(w, r, statusCode, ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetAddress returns the address the server listens on, or the configured
// address before Start.
func (s *Server) GetAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// IsRunning checks if the server is accepting connections. It is false
// before Start has bound a listener.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return false
	}

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
