package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/gvmscan/internal/auth"
	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

// MockScanClient is a mock implementation of scanClient.
type MockScanClient struct {
	mock.Mock
}

func (m *MockScanClient) StartScan(ctx context.Context, host, scanType string) (*orchestrator.ScanResult, error) {
	args := m.Called(ctx, host, scanType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.ScanResult), args.Error(1)
}

func (m *MockScanClient) RetryStart(ctx context.Context, taskID string) (*orchestrator.ScanResult, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.ScanResult), args.Error(1)
}

func (m *MockScanClient) StopScan(ctx context.Context, taskID string) (*orchestrator.StopResult, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.StopResult), args.Error(1)
}

func (m *MockScanClient) GetStatus(ctx context.Context, taskID string) (*orchestrator.StatusResult, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.StatusResult), args.Error(1)
}

func (m *MockScanClient) GetFindings(ctx context.Context, taskID string, requireDone bool) (*orchestrator.FindingsResult, error) {
	args := m.Called(ctx, taskID, requireDone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.FindingsResult), args.Error(1)
}

func (m *MockScanClient) EngineVersion(ctx context.Context) (*orchestrator.VersionResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.VersionResult), args.Error(1)
}

// resetFlags restores every flag to its default so tests do not leak
// state through the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs the CLI with args against client and returns stdout.
func executeCommand(t *testing.T, client scanClient, args ...string) (string, error) {
	t.Helper()

	original := newScanClient
	newScanClient = func(*config.Config, *logging.Logger) (scanClient, error) {
		return client, nil
	}
	t.Cleanup(func() {
		newScanClient = original
		resetFlags(rootCmd)
	})
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"scan":   {"start", "retry", "stop", "status", "findings", "watch"},
		"engine": {"version"},
		"config": {"init"},
		"serve":  nil,
	}

	for parent, children := range want {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err, parent)
		assert.Equal(t, parent, cmd.Name())

		for _, child := range children {
			sub, _, err := rootCmd.Find([]string{parent, child})
			require.NoError(t, err)
			assert.Equal(t, child, sub.Name(), "%s %s", parent, child)
		}
	}
}

func TestScanStart(t *testing.T) {
	client := new(MockScanClient)
	client.On("StartScan", mock.Anything, "10.0.0.5", "discovery").Return(&orchestrator.ScanResult{
		TaskID:        "task-1",
		Status:        orchestrator.StatusRequested,
		ReportID:      "r-1",
		Target:        "10.0.0.5",
		TargetID:      "t-1",
		TargetCreated: true,
		ScannerID:     "s-1",
	}, nil)

	out, err := executeCommand(t, client, "scan", "start", "10.0.0.5", "--type", "discovery")
	require.NoError(t, err)

	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "r-1")
	assert.Contains(t, out, "10.0.0.5 (t-1, created)")
	client.AssertExpectations(t)
}

func TestScanStart_StartFaultSuggestsRetry(t *testing.T) {
	client := new(MockScanClient)
	fault := errors.ErrUnexpected(errors.StepStartTask, "scanner busy").WithTaskID("task-9")
	client.On("StartScan", mock.Anything, "10.0.0.5", "").Return(nil, fault)

	_, err := executeCommand(t, client, "scan", "start", "10.0.0.5")
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.CodeUnexpected))
	assert.Contains(t, err.Error(), "gvmscan scan retry task-9")
}

func TestScanStatus_JSON(t *testing.T) {
	client := new(MockScanClient)
	client.On("GetStatus", mock.Anything, "task-1").Return(&orchestrator.StatusResult{
		TaskID:    "task-1",
		Status:    orchestrator.StatusRunning,
		RawStatus: "Running",
		Progress:  "42",
	}, nil)

	out, err := executeCommand(t, client, "scan", "status", "task-1", "-o", "json")
	require.NoError(t, err)

	var got orchestrator.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, orchestrator.StatusRunning, got.Status)
	assert.Equal(t, "42", got.Progress)
}

func TestScanFindings(t *testing.T) {
	client := new(MockScanClient)
	client.On("GetFindings", mock.Anything, "task-1", true).Return(&orchestrator.FindingsResult{
		TaskID: "task-1",
		Status: orchestrator.StatusDone,
		Findings: []orchestrator.Finding{
			{Name: "OpenSSH Obsolete Version", Severity: orchestrator.SeverityPlaceholder, OID: "1.3.6.1.4.1.25623.1.0.1"},
		},
	}, nil)

	out, err := executeCommand(t, client, "scan", "findings", "task-1", "--require-done")
	require.NoError(t, err)

	assert.Contains(t, out, "OpenSSH Obsolete Version")
	assert.Contains(t, out, "1 finding(s) for task task-1")
}

func TestScanFindings_YAML(t *testing.T) {
	client := new(MockScanClient)
	client.On("GetFindings", mock.Anything, "task-1", false).Return(&orchestrator.FindingsResult{
		TaskID:   "task-1",
		Status:   orchestrator.StatusRunning,
		Findings: []orchestrator.Finding{},
	}, nil)

	out, err := executeCommand(t, client, "scan", "findings", "task-1", "--output", "yaml")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "task-1", got["taskid"])
}

func TestScanStopAndRetry(t *testing.T) {
	client := new(MockScanClient)
	client.On("StopScan", mock.Anything, "task-1").Return(&orchestrator.StopResult{TaskID: "task-1"}, nil)
	client.On("RetryStart", mock.Anything, "task-2").Return(&orchestrator.ScanResult{
		TaskID: "task-2", Status: orchestrator.StatusRequested,
	}, nil)

	out, err := executeCommand(t, client, "scan", "stop", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop requested for task task-1")

	out, err = executeCommand(t, client, "scan", "retry", "task-2")
	require.NoError(t, err)
	assert.Contains(t, out, "task-2")
	client.AssertExpectations(t)
}

func TestScanCommands_RequireArgument(t *testing.T) {
	for _, sub := range []string{"start", "retry", "stop", "status", "findings", "watch"} {
		t.Run(sub, func(t *testing.T) {
			_, err := executeCommand(t, new(MockScanClient), "scan", sub)
			assert.Error(t, err)
		})
	}
}

func TestEngineVersion(t *testing.T) {
	client := new(MockScanClient)
	client.On("EngineVersion", mock.Anything).Return(&orchestrator.VersionResult{Version: "22.4"}, nil)

	out, err := executeCommand(t, client, "engine", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine protocol version: 22.4")
}

func TestEngineVersion_Fault(t *testing.T) {
	client := new(MockScanClient)
	client.On("EngineVersion", mock.Anything).
		Return(nil, errors.ErrEngineUnreachable(errors.StepOpenSession, context.DeadlineExceeded))

	_, err := executeCommand(t, client, "engine", "version")
	assert.True(t, errors.IsCode(err, errors.CodeEngineUnreachable))
}

func TestUnknownOutputFormat(t *testing.T) {
	client := new(MockScanClient)
	client.On("EngineVersion", mock.Anything).Return(&orchestrator.VersionResult{Version: "22.4"}, nil)

	_, err := executeCommand(t, client, "engine", "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("engine.host", "gvm.internal")
	v.Set("engine.port", 9391)
	v.Set("engine.password", "s3cret")
	v.Set("api.port", 9090)

	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, "gvm.internal", cfg.Engine.Host)
	assert.Equal(t, 9391, cfg.Engine.Port)
	assert.Equal(t, "admin", cfg.Engine.Username)
	assert.Equal(t, "s3cret", cfg.Engine.Password)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, logging.LevelInfo, cfg.Logging.Level)

	v.Set("verbose", true)
	applyOverrides(cfg, v)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
}

func TestDescribeError(t *testing.T) {
	plain := errors.ErrUnknownTask(errors.StepGetTask, "task-1", "not found")
	assert.Equal(t, plain, describeError(plain))

	startFault := errors.ErrUnexpected(errors.StepStartTask, "busy").WithTaskID("task-1")
	err := describeError(startFault)
	assert.ErrorIs(t, err, startFault)
	assert.Contains(t, err.Error(), "scan retry task-1")
}

func withWatchSettings(t *testing.T, interval time.Duration, attempts int) {
	t.Helper()
	prevInterval, prevAttempts := watchInterval, watchMaxAttempts
	watchInterval, watchMaxAttempts = interval, attempts
	t.Cleanup(func() {
		watchInterval, watchMaxAttempts = prevInterval, prevAttempts
	})
}

func TestWatchScan_UntilDone(t *testing.T) {
	withWatchSettings(t, time.Millisecond, 10)

	client := new(MockScanClient)
	client.On("GetStatus", mock.Anything, "task-1").
		Return(&orchestrator.StatusResult{TaskID: "task-1", Status: orchestrator.StatusRunning, Progress: "10"}, nil).Once()
	client.On("GetStatus", mock.Anything, "task-1").
		Return(nil, errors.ErrEngineUnreachable(errors.StepOpenSession, context.DeadlineExceeded)).Once()
	client.On("GetStatus", mock.Anything, "task-1").
		Return(&orchestrator.StatusResult{TaskID: "task-1", Status: orchestrator.StatusDone}, nil).Once()
	client.On("GetFindings", mock.Anything, "task-1", true).Return(&orchestrator.FindingsResult{
		TaskID:   "task-1",
		Status:   orchestrator.StatusDone,
		Findings: []orchestrator.Finding{{Name: "Weak TLS", Severity: "medium"}},
	}, nil)

	var out bytes.Buffer
	require.NoError(t, watchScan(context.Background(), &out, client, "task-1"))

	assert.Contains(t, out.String(), "Task task-1: Running (10%)")
	assert.Contains(t, out.String(), "Weak TLS")
	client.AssertExpectations(t)
}

func TestWatchScan_StoppedHasNoFindings(t *testing.T) {
	withWatchSettings(t, time.Millisecond, 5)

	client := new(MockScanClient)
	client.On("GetStatus", mock.Anything, "task-1").
		Return(&orchestrator.StatusResult{TaskID: "task-1", Status: orchestrator.StatusStopped}, nil)

	var out bytes.Buffer
	require.NoError(t, watchScan(context.Background(), &out, client, "task-1"))

	assert.Contains(t, out.String(), "ended without a report")
	client.AssertNotCalled(t, "GetFindings", mock.Anything, mock.Anything, mock.Anything)
}

func TestWatchScan_GivesUp(t *testing.T) {
	withWatchSettings(t, time.Millisecond, 3)

	client := new(MockScanClient)
	client.On("GetStatus", mock.Anything, "task-1").
		Return(&orchestrator.StatusResult{TaskID: "task-1", Status: orchestrator.StatusRunning}, nil)

	err := watchScan(context.Background(), new(bytes.Buffer), client, "task-1")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "still Running after 3 polls")
	client.AssertNumberOfCalls(t, "GetStatus", 3)
}

func TestWatchScan_UnknownTaskStops(t *testing.T) {
	withWatchSettings(t, time.Millisecond, 10)

	client := new(MockScanClient)
	client.On("GetStatus", mock.Anything, "task-1").
		Return(nil, errors.ErrUnknownTask(errors.StepGetTask, "task-1", "no such task"))

	err := watchScan(context.Background(), new(bytes.Buffer), client, "task-1")

	assert.True(t, errors.IsCode(err, errors.CodeUnknownTask))
	client.AssertNumberOfCalls(t, "GetStatus", 1)
}

func TestPrintFindings_Empty(t *testing.T) {
	var out bytes.Buffer
	printFindings(&out, &orchestrator.FindingsResult{TaskID: "task-1", Status: orchestrator.StatusRunning})
	assert.Equal(t, "No findings for task task-1 (status Running)\n", out.String())
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &orchestrator.StatusResult{TaskID: "t", Status: orchestrator.StatusDone})
	assert.Equal(t, "Task t: Done\n", strings.TrimLeft(out.String(), " "))
}

func TestAPIKeyGenerate(t *testing.T) {
	out, err := executeCommand(t, new(MockScanClient), "apikey", "generate", "--cost", "4", "-o", "json")
	require.NoError(t, err)

	var generated auth.GeneratedKey
	require.NoError(t, json.Unmarshal([]byte(out), &generated))
	assert.True(t, auth.IsValidKeyFormat(generated.Key))
	assert.True(t, auth.ValidateKey(generated.Key, generated.Hash))
}

func TestAPIKeyHash(t *testing.T) {
	out, err := executeCommand(t, new(MockScanClient), "apikey", "hash", "gvs_existing", "--cost", "4")
	require.NoError(t, err)

	assert.True(t, auth.ValidateKey("gvs_existing", strings.TrimSpace(out)))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "gvmscan.yaml")

	out, err := executeCommand(t, new(MockScanClient), "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Engine.Host, cfg.Engine.Host)
	assert.Equal(t, config.DefaultEnginePort, cfg.Engine.Port)
	assert.Equal(t, config.FullAndFastConfigID, cfg.Scanning.Profiles["full"])
}

func TestConfigInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  host: 10.9.9.9\n"), 0600))

	_, err := executeCommand(t, new(MockScanClient), "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.9.9.9")

	_, err = executeCommand(t, new(MockScanClient), "config", "init", path, "--force")
	require.NoError(t, err)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Engine.Host, cfg.Engine.Host)
}

type fakeServer struct {
	checks  atomic.Int32
	readyAt int32
}

func (f *fakeServer) IsRunning() bool {
	return f.checks.Add(1) >= f.readyAt
}

func (f *fakeServer) GetAddress() string {
	return "127.0.0.1:8000"
}

func TestAnnounceReady(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.DefaultConfig(), &logs)

	server := &fakeServer{readyAt: 3}
	assert.True(t, announceReady(context.Background(), server, logger))
	assert.Equal(t, int32(3), server.checks.Load())
	assert.Contains(t, logs.String(), "API server ready")
	assert.Contains(t, logs.String(), "127.0.0.1:8000")
}

func TestAnnounceReady_Cancelled(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.DefaultConfig(), &logs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, announceReady(ctx, &fakeServer{readyAt: 1 << 30}, logger))
	assert.NotContains(t, logs.String(), "API server ready")
	assert.NotContains(t, logs.String(), "not accepting")
}
