// Package orchestrator drives scan tasks on a remote scan engine: it
// provisions targets idempotently, picks a scanner, creates and starts tasks,
// and reports task status and findings.
//
// Every operation opens its own authenticated engine session and closes it
// before returning. No state is kept between operations; the engine is the
// only source of truth.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/gateway"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/metrics"
	"github.com/anstrom/gvmscan/internal/normalize"
)

// Operation names used in logs and metrics.
const (
	OpStartScan     = "start_scan"
	OpRetryStart    = "retry_start"
	OpStopScan      = "stop_scan"
	OpGetStatus     = "get_status"
	OpGetFindings   = "get_findings"
	OpEngineVersion = "engine_version"
)

const statusNotFound = "404"

// Controller runs the scan lifecycle against the engine behind a Dialer.
// It is safe for concurrent use.
type Controller struct {
	dialer   gateway.Dialer
	username string
	password string
	cfg      *config.Config

	targets  *TargetResolver
	scanners *ScannerResolver
	logger   *logging.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the clock used to name tasks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Controller) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

// NewController creates a Controller from the engine and scanning settings.
func NewController(dialer gateway.Dialer, cfg *config.Config, logger *logging.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = logging.Default()
	}

	c := &Controller{
		dialer:   dialer,
		username: cfg.Engine.Username,
		password: cfg.Engine.Password,
		cfg:      cfg,
		logger:   logger.WithComponent("orchestrator"),
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.targets = NewTargetResolver(cfg.Scanning.PortListID, c.metrics)
	c.scanners = NewScannerResolver(cfg.Scanning.ScannerPrefix, c.metrics)
	return c
}

// StartScan provisions a target for host (reusing an existing one), resolves
// a scanner, then creates and starts a task using the scanType profile. An
// empty scanType selects the default profile.
//
// When the start step fails the task already exists: the returned fault
// carries its id and step start_task, and RetryStart can launch it.
func (c *Controller) StartScan(ctx context.Context, host, scanType string) (*ScanResult, error) {
	host = strings.TrimSpace(host)
	logger := c.logger.WithHost(host)

	if host == "" {
		return nil, c.reject(OpStartScan, logger, errors.ErrInvalidTarget(host))
	}
	if scanType == "" {
		scanType = c.cfg.Scanning.DefaultProfile
	}
	configID, ok := c.cfg.ProfileConfigID(scanType)
	if !ok {
		return nil, c.reject(OpStartScan, logger, errors.ErrInvalidScanType(scanType).WithTarget(host))
	}

	var result *ScanResult
	err := c.run(ctx, OpStartScan, logger, func(s gateway.Session) error {
		start := time.Now()
		target, created, err := c.targets.ResolveOrCreate(ctx, s, host)
		if err != nil {
			return err
		}
		logger.DebugStep("Target resolved", errors.StepResolveTarget,
			"target_id", target.ID, "created", created, "duration", time.Since(start))

		start = time.Now()
		scanner, err := c.scanners.Resolve(ctx, s)
		if err != nil {
			return err
		}
		logger.DebugStep("Scanner resolved", errors.StepResolveScanner,
			"scanner_id", scanner.ID, "scanner_name", scanner.Name, "duration", time.Since(start))

		start = time.Now()
		name := fmt.Sprintf("scan_%s_%d", host, c.now().Unix())
		taskID, err := c.createTask(ctx, s, name, configID, target.ID, scanner.ID, "Scan of "+host)
		if err != nil {
			return err
		}
		logger.DebugStep("Task created", errors.StepCreateTask,
			"task_id", taskID, "task_name", name, "duration", time.Since(start))

		start = time.Now()
		reportID, err := c.startTask(ctx, s, taskID)
		if err != nil {
			return err
		}
		logger.DebugStep("Task started", errors.StepStartTask,
			"task_id", taskID, "report_id", reportID, "duration", time.Since(start))

		result = &ScanResult{
			TaskID:        taskID,
			Status:        StatusRequested,
			ReportID:      reportID,
			TaskName:      name,
			Target:        host,
			TargetID:      target.ID,
			TargetCreated: created,
			ScannerID:     scanner.ID,
			ScanType:      scanType,
		}
		return nil
	})
	if err != nil {
		return nil, withTarget(err, host)
	}
	return result, nil
}

// RetryStart re-issues only the start step for a task whose creation
// succeeded but whose start failed.
func (c *Controller) RetryStart(ctx context.Context, taskID string) (*ScanResult, error) {
	logger := c.logger.WithTaskID(taskID)
	if strings.TrimSpace(taskID) == "" {
		return nil, c.reject(OpRetryStart, logger, errors.ErrInvalidTaskID())
	}

	var result *ScanResult
	err := c.run(ctx, OpRetryStart, logger, func(s gateway.Session) error {
		reportID, err := c.startTask(ctx, s, taskID)
		if err != nil {
			return err
		}
		result = &ScanResult{TaskID: taskID, Status: StatusRequested, ReportID: reportID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StopScan asks the engine to stop a task. Stopping a task that is not
// running is left to the engine, whose answer is passed through.
func (c *Controller) StopScan(ctx context.Context, taskID string) (*StopResult, error) {
	logger := c.logger.WithTaskID(taskID)
	if strings.TrimSpace(taskID) == "" {
		return nil, c.reject(OpStopScan, logger, errors.ErrInvalidTaskID())
	}

	var result *StopResult
	err := c.run(ctx, OpStopScan, logger, func(s gateway.Session) error {
		resp, err := call(c.metrics, errors.StepStopTask, func() (any, error) {
			return s.StopTask(ctx, taskID)
		})
		if err != nil {
			return withTaskID(err, taskID)
		}
		if err := taskFault(resp, errors.StepStopTask, taskID); err != nil {
			return err
		}
		result = &StopResult{TaskID: taskID, Message: resp.StatusText}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetStatus returns the current status of a task. A task id the engine does
// not know yields an UNKNOWN_TASK fault, not StatusUnknown.
func (c *Controller) GetStatus(ctx context.Context, taskID string) (*StatusResult, error) {
	logger := c.logger.WithTaskID(taskID)
	if strings.TrimSpace(taskID) == "" {
		return nil, c.reject(OpGetStatus, logger, errors.ErrInvalidTaskID())
	}

	var result *StatusResult
	err := c.run(ctx, OpGetStatus, logger, func(s gateway.Session) error {
		status, err := c.taskStatus(ctx, s, taskID)
		if err != nil {
			return err
		}
		result = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetFindings returns the findings of a finished task. While the task is not
// Done the current status is returned with no findings and no report is
// fetched, unless requireDone is set, in which case NOT_READY is returned.
func (c *Controller) GetFindings(ctx context.Context, taskID string, requireDone bool) (*FindingsResult, error) {
	logger := c.logger.WithTaskID(taskID)
	if strings.TrimSpace(taskID) == "" {
		return nil, c.reject(OpGetFindings, logger, errors.ErrInvalidTaskID())
	}

	var result *FindingsResult
	err := c.run(ctx, OpGetFindings, logger, func(s gateway.Session) error {
		status, err := c.taskStatus(ctx, s, taskID)
		if err != nil {
			return err
		}
		if status.Status != StatusDone {
			if requireDone {
				return errors.ErrNotReady(taskID, status.RawStatus)
			}
			result = &FindingsResult{TaskID: taskID, Status: status.Status, Findings: []Finding{}}
			return nil
		}

		start := time.Now()
		resp, err := call(c.metrics, errors.StepGetReports, func() (any, error) {
			return s.GetReports(ctx, taskID)
		})
		if err != nil {
			return withTaskID(err, taskID)
		}
		if err := taskFault(resp, errors.StepGetReports, taskID); err != nil {
			return err
		}

		findings := extractFindings(resp)
		logger.DebugStep("Reports fetched", errors.StepGetReports,
			"findings", len(findings), "duration", time.Since(start))
		c.metrics.AddFindings(len(findings))

		result = &FindingsResult{TaskID: taskID, Status: StatusDone, Findings: findings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EngineVersion checks connectivity and credentials and returns the
// protocol version the engine speaks.
func (c *Controller) EngineVersion(ctx context.Context) (*VersionResult, error) {
	var result *VersionResult
	err := c.run(ctx, OpEngineVersion, c.logger, func(s gateway.Session) error {
		resp, err := call(c.metrics, errors.StepGetVersion, func() (any, error) {
			return s.GetVersion(ctx)
		})
		if err != nil {
			return err
		}
		if !resp.OK {
			return errors.ErrUnexpected(errors.StepGetVersion, resp.Diagnostic())
		}
		version := resp.Fields["version"]
		if version == "" {
			return errors.ErrUnexpected(errors.StepGetVersion, "version missing from engine response")
		}
		result = &VersionResult{Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Controller) createTask(ctx context.Context, s gateway.Session, name, configID, targetID, scannerID, comment string) (string, error) {
	resp, err := call(c.metrics, errors.StepCreateTask, func() (any, error) {
		return s.CreateTask(ctx, name, configID, targetID, scannerID, comment)
	})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", errors.ErrUnexpected(errors.StepCreateTask, resp.Diagnostic())
	}
	if !resp.HasID() {
		return "", errors.ErrCreationAckWithoutID(errors.StepCreateTask, resp.StatusText)
	}
	return resp.ID, nil
}

// startTask launches taskID and returns the report id, if the engine sent one.
func (c *Controller) startTask(ctx context.Context, s gateway.Session, taskID string) (string, error) {
	resp, err := call(c.metrics, errors.StepStartTask, func() (any, error) {
		return s.StartTask(ctx, taskID)
	})
	if err != nil {
		return "", withTaskID(err, taskID)
	}
	if err := taskFault(resp, errors.StepStartTask, taskID); err != nil {
		return "", err
	}
	return resp.Fields["report_id"], nil
}

func (c *Controller) taskStatus(ctx context.Context, s gateway.Session, taskID string) (*StatusResult, error) {
	resp, err := call(c.metrics, errors.StepGetTask, func() (any, error) {
		return s.GetTask(ctx, taskID)
	})
	if err != nil {
		return nil, withTaskID(err, taskID)
	}
	if err := taskFault(resp, errors.StepGetTask, taskID); err != nil {
		return nil, err
	}

	fields, ok := findTask(resp, taskID)
	if !ok {
		return nil, errors.ErrUnknownTask(errors.StepGetTask, taskID, "engine returned no matching task")
	}

	raw := fields["status"]
	return &StatusResult{
		TaskID:    taskID,
		Status:    ParseTaskStatus(raw),
		RawStatus: raw,
		Progress:  fields["progress"],
	}, nil
}

// findTask locates taskID in a task response: either a task element with
// that id, or a flat record describing the task itself.
func findTask(resp normalize.Response, taskID string) (map[string]string, bool) {
	for _, el := range resp.ElementsByTag("task") {
		if el.ID == taskID {
			return el.Fields, true
		}
	}
	if resp.Status != "" && (resp.ID == "" || resp.ID == taskID) {
		return resp.Fields, true
	}
	return nil, false
}

// taskFault converts a failed task-scoped response into a fault.
func taskFault(resp normalize.Response, step, taskID string) error {
	if resp.OK {
		return nil
	}
	if resp.Code == statusNotFound {
		return errors.ErrUnknownTask(step, taskID, resp.Diagnostic())
	}
	return errors.ErrUnexpected(step, resp.Diagnostic()).WithTaskID(taskID)
}

// extractFindings collects every vulnerability record in a report listing.
func extractFindings(resp normalize.Response) []Finding {
	root := normalize.Element{Children: resp.Elements}
	findings := []Finding{}
	for _, nvt := range root.Find("nvt") {
		name := nvt.Field("name")
		if name == "" {
			continue
		}
		findings = append(findings, Finding{
			Name:     name,
			Severity: SeverityPlaceholder,
			OID:      nvt.Field("oid"),
		})
	}
	return findings
}

// run executes fn inside a scoped, authenticated session. It records the
// outcome and converts anything that is not already a fault, panics
// included, into one.
func (c *Controller) run(ctx context.Context, operation string, logger *logging.Logger, fn func(gateway.Session) error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.ErrUnexpected("", fmt.Sprintf("panic: %v", r))
		}
		if err != nil {
			err = c.fail(operation, logger, err, start)
			return
		}
		c.metrics.IncrementOperations(operation, metrics.OutcomeSuccess)
		logger.Info("Operation completed", "operation", operation, "duration", time.Since(start))
	}()

	return c.withSession(ctx, logger, fn)
}

func (c *Controller) withSession(ctx context.Context, logger *logging.Logger, fn func(gateway.Session) error) error {
	start := time.Now()
	session, err := c.dialer.Dial(ctx)
	if err != nil {
		return errors.ErrEngineUnreachable(errors.StepOpenSession, err)
	}
	if session == nil {
		return errors.ErrUnexpected(errors.StepOpenSession, "dialer returned no session")
	}

	c.metrics.SessionOpened()
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Failed to close engine session", "error", cerr)
		}
		c.metrics.SessionClosed()
	}()

	resp, err := call(c.metrics, errors.StepAuthenticate, func() (any, error) {
		return session.Authenticate(ctx, c.username, c.password)
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.ErrAuthenticationFailed(resp.Diagnostic())
	}
	logger.DebugStep("Session authenticated", errors.StepAuthenticate, "duration", time.Since(start))

	return fn(session)
}

// reject records a request refused before any engine contact.
func (c *Controller) reject(operation string, logger *logging.Logger, se *errors.ScanError) error {
	return c.fail(operation, logger, se, time.Now())
}

func (c *Controller) fail(operation string, logger *logging.Logger, err error, start time.Time) error {
	se, ok := errors.AsScanError(err)
	if !ok {
		se = errors.WrapScanError(errors.CodeUnexpected, "Unexpected failure", err)
	}

	c.metrics.IncrementStepFaults(se.Operation, string(se.Code))
	c.metrics.IncrementOperations(operation, metrics.OutcomeError)
	logger.ErrorStep("Operation failed", se.Operation, se,
		"operation", operation,
		"code", se.Code,
		"duration", time.Since(start))
	return se
}

func withTarget(err error, host string) error {
	if se, ok := errors.AsScanError(err); ok && se.Target == "" {
		se.WithTarget(host)
	}
	return err
}

func withTaskID(err error, taskID string) error {
	if se, ok := errors.AsScanError(err); ok && se.TaskID == "" {
		se.WithTaskID(taskID)
	}
	return err
}
