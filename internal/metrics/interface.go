package metrics

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/anstrom/gvmscan/internal/metrics Recorder

import "time"

// Recorder is the subset of metrics the orchestrator and the HTTP layer
// report through. It allows for easy mocking in tests.
type Recorder interface {
	IncrementOperations(operation, outcome string)
	IncrementStepFaults(step, code string)
	IncrementTargetResolutions(outcome string)
	AddFindings(count int)
	SessionOpened()
	SessionClosed()
	RecordEngineCall(step string, duration time.Duration, success bool)

	IncrementHTTPRequests(method, path, status string)
	RecordHTTPDuration(method, path string, duration time.Duration)
	IncrementHTTPErrors(method, path, errorType string)
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)

// Nop discards every measurement.
type Nop struct{}

func (Nop) IncrementOperations(string, string) {}
func (Nop) IncrementStepFaults(string, string) {}
func (Nop) IncrementTargetResolutions(string) {}
func (Nop) AddFindings(int) {}
func (Nop) SessionOpened() {}
func (Nop) SessionClosed() {}
func (Nop) RecordEngineCall(string, time.Duration, bool) {}
func (Nop) IncrementHTTPRequests(string, string, string) {}
func (Nop) RecordHTTPDuration(string, string, time.Duration) {}
func (Nop) IncrementHTTPErrors(string, string, string) {}
