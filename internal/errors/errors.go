// Package errors provides structured error handling for gvmscan operations.
// It defines the fault taxonomy surfaced by the scan orchestration engine and
// utilities for creating and classifying those faults.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Engine faults.
	CodeEngineUnreachable    ErrorCode = "ENGINE_UNREACHABLE"
	CodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	CodeCreationAckWithoutID ErrorCode = "CREATION_ACK_WITHOUT_ID"
	CodeResolutionFailed     ErrorCode = "RESOLUTION_FAILED"
	CodeUnknownTask          ErrorCode = "UNKNOWN_TASK"
	CodeNotReady             ErrorCode = "NOT_READY"
	CodeUnexpected           ErrorCode = "UNEXPECTED"
)

// Lifecycle steps recorded in ScanError.Operation.
const (
	StepValidate       = "validate"
	StepOpenSession    = "open_session"
	StepAuthenticate   = "authenticate"
	StepResolveTarget  = "resolve_target"
	StepCreateTarget   = "create_target"
	StepResolveScanner = "resolve_scanner"
	StepCreateTask     = "create_task"
	StepStartTask      = "start_task"
	StepStopTask       = "stop_task"
	StepGetTask        = "get_task"
	StepGetReports     = "get_reports"
	StepGetVersion     = "get_version"
)

// ScanError represents a fault raised while orchestrating a scan.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	TaskID    string
	Operation string
	// Diagnostic holds the raw text returned by the engine, if any.
	Diagnostic string
	Cause      error
	Context    map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (step: %s)", e.Operation)
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if e.TaskID != "" {
		msg += fmt.Sprintf(" (task: %s)", e.TaskID)
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithStep records the lifecycle step that failed.
func (e *ScanError) WithStep(step string) *ScanError {
	e.Operation = step
	return e
}

// WithTarget records the host the fault relates to.
func (e *ScanError) WithTarget(target string) *ScanError {
	e.Target = target
	return e
}

// WithTaskID records the task the fault relates to.
func (e *ScanError) WithTaskID(taskID string) *ScanError {
	e.TaskID = taskID
	return e
}

// WithDiagnostic attaches raw engine text for operator inspection.
func (e *ScanError) WithDiagnostic(text string) *ScanError {
	e.Diagnostic = text
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// AsScanError returns the first *ScanError in err's chain.
func AsScanError(err error) (*ScanError, bool) {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se.Code
	}
	var ce *ConfigError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnknown
}

// IsRetryable reports whether the caller may safely repeat the whole request.
// Faults raised after a create call reached the engine are never retryable,
// since repeating them can provision duplicates.
func IsRetryable(err error) bool {
	se, ok := AsScanError(err)
	if !ok {
		return false
	}
	switch se.Code {
	case CodeEngineUnreachable:
		return se.Operation == StepOpenSession || se.Operation == StepAuthenticate ||
			se.Operation == StepResolveTarget || se.Operation == StepResolveScanner ||
			se.Operation == StepGetTask || se.Operation == StepGetReports ||
			se.Operation == StepGetVersion
	case CodeNotReady:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for an empty or malformed host.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanError(CodeValidation, "Invalid target specification").
		WithStep(StepValidate).WithTarget(target)
}

// ErrInvalidScanType creates an error for a scan type with no configured profile.
func ErrInvalidScanType(scanType string) *ScanError {
	return NewScanError(CodeValidation, "Unknown scan type").
		WithStep(StepValidate).WithContext("scan_type", scanType)
}

// ErrInvalidTaskID creates an error for an empty task id.
func ErrInvalidTaskID() *ScanError {
	return NewScanError(CodeValidation, "Task id is required").WithStep(StepValidate)
}

// ErrEngineUnreachable wraps a transport failure at the given step.
// A context deadline or cancellation is reported the same way.
func ErrEngineUnreachable(step string, err error) *ScanError {
	msg := "Scan engine is unreachable"
	if stderrors.Is(err, context.DeadlineExceeded) {
		msg = "Scan engine request timed out"
	}
	return WrapScanError(CodeEngineUnreachable, msg, err).WithStep(step)
}

// ErrAuthenticationFailed creates an error for rejected engine credentials.
func ErrAuthenticationFailed(diagnostic string) *ScanError {
	return NewScanError(CodeAuthenticationFailed, "Scan engine rejected credentials").
		WithStep(StepAuthenticate).WithDiagnostic(diagnostic)
}

// ErrCreationAckWithoutID creates an error for a create ack lacking an id.
func ErrCreationAckWithoutID(step, diagnostic string) *ScanError {
	return NewScanError(CodeCreationAckWithoutID, "Engine acknowledged creation without an id").
		WithStep(step).WithDiagnostic(diagnostic)
}

// ErrResolutionFailed creates an error for a listing that could not be used.
func ErrResolutionFailed(step, diagnostic string) *ScanError {
	return NewScanError(CodeResolutionFailed, "Failed to resolve engine listing").
		WithStep(step).WithDiagnostic(diagnostic)
}

// ErrNoScanner creates an error for an engine with no usable scanner.
func ErrNoScanner() *ScanError {
	return NewScanError(CodeNotFound, "No scanner available on the scan engine").
		WithStep(StepResolveScanner)
}

// ErrUnknownTask creates an error for a task id the engine does not recognize.
func ErrUnknownTask(step, taskID, diagnostic string) *ScanError {
	return NewScanError(CodeUnknownTask, "Task is not known to the scan engine").
		WithStep(step).WithTaskID(taskID).WithDiagnostic(diagnostic)
}

// ErrNotReady creates an error for a report requested before completion.
func ErrNotReady(taskID, status string) *ScanError {
	return NewScanError(CodeNotReady, "Task has not finished").
		WithStep(StepGetReports).WithTaskID(taskID).WithContext("status", status)
}

// ErrUnexpected creates an error for an engine reply that cannot be interpreted.
func ErrUnexpected(step, diagnostic string) *ScanError {
	return NewScanError(CodeUnexpected, "Unexpected response from scan engine").
		WithStep(step).WithDiagnostic(diagnostic)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
