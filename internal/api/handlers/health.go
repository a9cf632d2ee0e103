// Package handlers provides HTTP request handlers for the gvmscan API.
// This file implements health check and system status endpoints.
package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

// EngineChecker checks that the scan engine accepts a session.
type EngineChecker interface {
	EngineVersion(ctx context.Context) (*orchestrator.VersionResult, error)
}

// Timeout constants.
const (
	healthCheckTimeout = 5 * time.Second
	dependencyTimeout  = 3 * time.Second
)

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusDegraded      = "degraded"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
)

// HealthHandler handles health check and status endpoints.
type HealthHandler struct {
	engine    EngineChecker
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. engine may be nil, in which
// case the engine check is reported as not configured.
func NewHealthHandler(engine EngineChecker, logger *logging.Logger) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		logger:    logger.WithFields("handler", "health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// LivenessResponse represents a simple liveness check response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// StatusResponse represents a detailed status response.
type StatusResponse struct {
	Service   ServiceInfo    `json:"service"`
	System    SystemInfo     `json:"system"`
	Health    HealthResponse `json:"health"`
	Timestamp time.Time      `json:"timestamp"`
}

// ServiceInfo contains service-related information.
type ServiceInfo struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
	PID       int       `json:"pid"`
}

// SystemInfo contains system-related information.
type SystemInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	GoVersion    string `json:"go_version"`
	Goroutines   int    `json:"goroutines"`
	AllocBytes   uint64 `json:"alloc_bytes"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health checks engine connectivity and process resources. An unreachable
// engine makes the service unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	h.logger.Debug("Health check requested", "remote_addr", r.RemoteAddr)

	response := h.getHealthInfo(ctx)

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, r, statusCode, response)
}

// Liveness performs a simple liveness check without dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
	})
}

// Status provides detailed system status information.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, r, http.StatusOK, StatusResponse{
		Service: ServiceInfo{
			Name:      "gvmscan",
			Version:   version,
			StartTime: h.startTime,
			Uptime:    time.Since(h.startTime).String(),
			PID:       os.Getpid(),
		},
		System: SystemInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			CPUs:         runtime.NumCPU(),
			GoVersion:    runtime.Version(),
			Goroutines:   runtime.NumGoroutine(),
			AllocBytes:   memStats.Alloc,
		},
		Health:    h.getHealthInfo(ctx),
		Timestamp: time.Now().UTC(),
	})
}

// Version provides version information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Timestamp: time.Now().UTC(),
	})
}

// getHealthInfo performs health checks and returns status.
func (h *HealthHandler) getHealthInfo(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]string),
	}

	if h.engine != nil {
		engineCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
		defer cancel()

		if v, err := h.engine.EngineVersion(engineCtx); err != nil {
			response.Status = StatusUnhealthy
			response.Checks["engine"] = "failed: " + err.Error()
			h.logger.Warn("Engine health check failed", "error", err)
		} else {
			response.Checks["engine"] = "ok (protocol " + v.Version + ")"
		}
	} else {
		response.Checks["engine"] = StatusNotConfigured
	}

	// Over 1GB allocated is degraded.
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	const maxMemory = 1 << 30
	if memStats.Alloc > maxMemory {
		if response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
		response.Checks["memory"] = "high usage"
	} else {
		response.Checks["memory"] = "ok"
	}

	goroutines := runtime.NumGoroutine()
	const maxGoroutines = 1000
	if goroutines > maxGoroutines {
		if response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
		response.Checks["goroutines"] = "high count"
	} else {
		response.Checks["goroutines"] = "ok"
	}

	return response
}

// Build information, set via ldflags through SetBuildInfo.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
