package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeConfiguration,
		CodeNotFound,
		CodeEngineUnreachable,
		CodeAuthenticationFailed,
		CodeCreationAckWithoutID,
		CodeResolutionFailed,
		CodeUnknownTask,
		CodeNotReady,
		CodeUnexpected,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("Error code %v should not be empty", code)
		}
		if seen[code] {
			t.Errorf("Error code %s is duplicated", code)
		}
		seen[code] = true
	}
}

func TestScanError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := NewScanError(CodeUnexpected, "bad reply")
		if err.Code != CodeUnexpected {
			t.Errorf("Expected code %s, got %s", CodeUnexpected, err.Code)
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
		expected := "[UNEXPECTED] bad reply"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error with step target and task", func(t *testing.T) {
		err := NewScanError(CodeUnknownTask, "missing").
			WithStep(StepGetTask).
			WithTarget("10.0.0.5").
			WithTaskID("t-9")
		expected := "[UNKNOWN_TASK] missing (step: get_task) (target: 10.0.0.5) (task: t-9)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("diagnostic preferred over cause", func(t *testing.T) {
		err := WrapScanError(CodeResolutionFailed, "listing", fmt.Errorf("io")).
			WithDiagnostic("Failed to find target")
		if !strings.HasSuffix(err.Error(), ": Failed to find target") {
			t.Errorf("Expected diagnostic suffix, got '%s'", err.Error())
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := WrapScanError(CodeEngineUnreachable, "dial", cause)
		if err.Unwrap() != cause {
			t.Error("Wrapped error should be unwrappable")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
	})

	t.Run("with context", func(t *testing.T) {
		err := NewScanError(CodeNotReady, "wait")
		err.WithContext("status", "Running").WithContext("attempt", 3)
		if err.Context["status"] != "Running" {
			t.Errorf("Expected status 'Running', got %v", err.Context["status"])
		}
		if err.Context["attempt"] != 3 {
			t.Errorf("Expected attempt 3, got %v", err.Context["attempt"])
		}
	})
}

func TestConfigError(t *testing.T) {
	err := ErrConfigMissing("engine.host")
	expected := "[CONFIGURATION] Required configuration field missing (field: engine.host)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}

	cause := fmt.Errorf("yaml: line 3")
	wrapped := WrapConfigError(CodeConfiguration, "parse", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}
	if GetCode(wrapped) != CodeConfiguration {
		t.Errorf("Expected code %s, got %s", CodeConfiguration, GetCode(wrapped))
	}
}

func TestGetCodeAndIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"scan error", NewScanError(CodeNotReady, "x"), CodeNotReady},
		{"wrapped scan error", fmt.Errorf("outer: %w", NewScanError(CodeUnknownTask, "x")), CodeUnknownTask},
		{"config error", ErrConfigInvalid("api.port", 0), CodeValidation},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %s, want %s", got, tt.want)
			}
			if tt.err != nil && !IsCode(tt.err, tt.want) {
				t.Errorf("IsCode(%s) should be true", tt.want)
			}
		})
	}
}

func TestErrEngineUnreachable(t *testing.T) {
	err := ErrEngineUnreachable(StepOpenSession, context.DeadlineExceeded)
	if err.Code != CodeEngineUnreachable {
		t.Errorf("Expected code %s, got %s", CodeEngineUnreachable, err.Code)
	}
	if err.Message != "Scan engine request timed out" {
		t.Errorf("Expected timeout message, got '%s'", err.Message)
	}

	err = ErrEngineUnreachable(StepOpenSession, fmt.Errorf("refused"))
	if err.Message != "Scan engine is unreachable" {
		t.Errorf("Expected unreachable message, got '%s'", err.Message)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unreachable at open", ErrEngineUnreachable(StepOpenSession, fmt.Errorf("x")), true},
		{"unreachable at status poll", ErrEngineUnreachable(StepGetTask, fmt.Errorf("x")), true},
		{"unreachable at create task", ErrEngineUnreachable(StepCreateTask, fmt.Errorf("x")), false},
		{"unreachable at create target", ErrEngineUnreachable(StepCreateTarget, fmt.Errorf("x")), false},
		{"not ready", ErrNotReady("t-1", "Running"), true},
		{"creation ack", ErrCreationAckWithoutID(StepCreateTask, ""), false},
		{"authentication", ErrAuthenticationFailed("denied"), false},
		{"plain", fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstructorsRecordSteps(t *testing.T) {
	tests := []struct {
		name string
		err  *ScanError
		code ErrorCode
		step string
	}{
		{"invalid target", ErrInvalidTarget(""), CodeValidation, StepValidate},
		{"auth", ErrAuthenticationFailed("bad"), CodeAuthenticationFailed, StepAuthenticate},
		{"creation ack", ErrCreationAckWithoutID(StepCreateTarget, ""), CodeCreationAckWithoutID, StepCreateTarget},
		{"resolution", ErrResolutionFailed(StepResolveScanner, ""), CodeResolutionFailed, StepResolveScanner},
		{"unknown task", ErrUnknownTask(StepGetTask, "t", ""), CodeUnknownTask, StepGetTask},
		{"not ready", ErrNotReady("t", "Running"), CodeNotReady, StepGetReports},
		{"unexpected", ErrUnexpected(StepStartTask, "?"), CodeUnexpected, StepStartTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Operation != tt.step {
				t.Errorf("Expected step %s, got %s", tt.step, tt.err.Operation)
			}
		})
	}
}
