// Package handlers provides HTTP request handlers for the gvmscan API.
// This file contains common utilities shared across all handlers: JSON
// encoding, request parsing and the mapping of engine faults to HTTP statuses.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/anstrom/gvmscan/internal/api/middleware"
	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/logging"
)

// Maximum accepted request body size.
const maxRequestSize = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Step       string    `json:"step,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// validate is shared; validator caches struct metadata and is safe for
// concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		logging.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}

	writeJSON(w, r, statusCode, response)
}

// writeFault writes an orchestration fault with its code, step and
// engine diagnostic.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := errors.AsScanError(err)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	statusCode := statusForCode(se.Code)
	writeJSON(w, r, statusCode, ErrorResponse{
		Error:      http.StatusText(statusCode),
		Message:    se.Message,
		Code:       string(se.Code),
		Step:       se.Operation,
		TaskID:     se.TaskID,
		Diagnostic: se.Diagnostic,
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(r),
	})
}

// statusForCode maps a fault code to the HTTP status reported to callers.
func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeUnknownTask:
		return http.StatusNotFound
	case errors.CodeNotReady:
		return http.StatusConflict
	case errors.CodeEngineUnreachable, errors.CodeAuthenticationFailed,
		errors.CodeResolutionFailed, errors.CodeCreationAckWithoutID,
		errors.CodeNotFound, errors.CodeUnexpected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseJSON decodes the request body into dest and validates it.
func parseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("request body is empty")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large (max %d bytes)", maxRequestSize)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator output into one readable message.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// extractStringFromPath extracts the id path parameter.
func extractStringFromPath(r *http.Request) (string, error) {
	idStr, exists := mux.Vars(r)["id"]
	if !exists {
		return "", fmt.Errorf("id not provided")
	}

	if strings.TrimSpace(idStr) == "" {
		return "", fmt.Errorf("id cannot be empty")
	}

	return idStr, nil
}
