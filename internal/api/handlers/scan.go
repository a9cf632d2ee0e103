package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/anstrom/gvmscan/internal/api/middleware"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

// Orchestrator is the scan lifecycle the API exposes.
type Orchestrator interface {
	StartScan(ctx context.Context, host, scanType string) (*orchestrator.ScanResult, error)
	RetryStart(ctx context.Context, taskID string) (*orchestrator.ScanResult, error)
	StopScan(ctx context.Context, taskID string) (*orchestrator.StopResult, error)
	GetStatus(ctx context.Context, taskID string) (*orchestrator.StatusResult, error)
	GetFindings(ctx context.Context, taskID string, requireDone bool) (*orchestrator.FindingsResult, error)
	EngineVersion(ctx context.Context) (*orchestrator.VersionResult, error)
}

var _ Orchestrator = (*orchestrator.Controller)(nil)

// ScanHandler handles scan-related API endpoints.
type ScanHandler struct {
	orchestrator Orchestrator
	logger       *logging.Logger
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(o Orchestrator, logger *logging.Logger) *ScanHandler {
	return &ScanHandler{
		orchestrator: o,
		logger:       logger.WithFields("handler", "scan"),
	}
}

// ScanRequest represents a scan start request.
type ScanRequest struct {
	Target   string `json:"target" validate:"required,max=255"`
	ScanType string `json:"scan_type,omitempty" validate:"omitempty,max=64"`
}

// StartScan handles POST /api/v1/scans.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("Starting scan",
		"request_id", middleware.GetRequestID(r),
		"target", req.Target,
		"scan_type", req.ScanType)

	result, err := h.orchestrator.StartScan(r.Context(), req.Target, req.ScanType)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, result)
}

// RetryStart handles POST /api/v1/scans/{id}/start.
func (h *ScanHandler) RetryStart(w http.ResponseWriter, r *http.Request) {
	taskID, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := h.orchestrator.RetryStart(r.Context(), taskID)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// StopScan handles POST /api/v1/scans/{id}/stop.
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	taskID, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("Stopping scan", "request_id", middleware.GetRequestID(r), "task_id", taskID)

	result, err := h.orchestrator.StopScan(r.Context(), taskID)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// GetScan handles GET /api/v1/scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	taskID, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := h.orchestrator.GetStatus(r.Context(), taskID)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// GetFindings handles GET /api/v1/scans/{id}/findings.
func (h *ScanHandler) GetFindings(w http.ResponseWriter, r *http.Request) {
	taskID, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	requireDone := false
	if v := r.URL.Query().Get("require_done"); v != "" {
		requireDone, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	result, err := h.orchestrator.GetFindings(r.Context(), taskID, requireDone)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// EngineVersion handles GET /api/v1/engine/version.
func (h *ScanHandler) EngineVersion(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.EngineVersion(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}
