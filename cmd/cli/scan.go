package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/cobra"

	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

const (
	defaultWatchInterval = 5 * time.Second
	defaultWatchAttempts = 60
)

var (
	scanType         string
	scanRequireDone  bool
	scanWatch        bool
	watchInterval    time.Duration
	watchMaxAttempts int
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Start, inspect and stop scans on the engine",
	Long: `Drive the scan lifecycle on the GVM engine.

A scan is started for a single host. The engine task id printed by
'scan start' is the handle for every other scan command.`,
	Example: `  gvmscan scan start 192.168.1.10
  gvmscan scan start db01.internal --type discovery --watch
  gvmscan scan status 3f2c...
  gvmscan scan findings 3f2c... --require-done -o json
  gvmscan scan watch 3f2c... --interval 10s --attempts 120`,
}

var scanStartCmd = &cobra.Command{
	Use:   "start <host>",
	Short: "Start a scan of a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout := commandTimeout
		if scanWatch {
			timeout += watchBudget()
		}
		return withClient(cmd, timeout, func(ctx context.Context, client scanClient) error {
			result, err := client.StartScan(ctx, args[0], scanType)
			if err != nil {
				return describeError(err)
			}
			if err := printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				printScanResult(w, result)
			}); err != nil {
				return err
			}
			if !scanWatch {
				return nil
			}
			return watchScan(ctx, cmd.OutOrStdout(), client, result.TaskID)
		})
	},
}

var scanRetryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Re-issue the start of a task that failed to start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, commandTimeout, func(ctx context.Context, client scanClient) error {
			result, err := client.RetryStart(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				printScanResult(w, result)
			})
		})
	},
}

var scanStopCmd = &cobra.Command{
	Use:   "stop <task-id>",
	Short: "Stop a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, commandTimeout, func(ctx context.Context, client scanClient) error {
			result, err := client.StopScan(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Stop requested for task %s\n", result.TaskID)
			})
		})
	},
}

var scanStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the status of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, commandTimeout, func(ctx context.Context, client scanClient) error {
			result, err := client.GetStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				printStatus(w, result)
			})
		})
	},
}

var scanFindingsCmd = &cobra.Command{
	Use:   "findings <task-id>",
	Short: "List the findings of a finished task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, commandTimeout, func(ctx context.Context, client scanClient) error {
			result, err := client.GetFindings(ctx, args[0], scanRequireDone)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				printFindings(w, result)
			})
		})
	},
}

var scanWatchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Poll a task until it finishes, then print its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, commandTimeout+watchBudget(), func(ctx context.Context, client scanClient) error {
			return watchScan(ctx, cmd.OutOrStdout(), client, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanStartCmd, scanRetryCmd, scanStopCmd, scanStatusCmd, scanFindingsCmd, scanWatchCmd)

	scanStartCmd.Flags().StringVarP(&scanType, "type", "t", "", "scan profile (default from config)")
	scanStartCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "wait for the scan to finish and print findings")

	scanFindingsCmd.Flags().BoolVar(&scanRequireDone, "require-done", false, "fail unless the task has finished")

	for _, c := range []*cobra.Command{scanStartCmd, scanWatchCmd} {
		c.Flags().DurationVar(&watchInterval, "interval", defaultWatchInterval, "polling interval")
		c.Flags().IntVar(&watchMaxAttempts, "attempts", defaultWatchAttempts, "maximum number of status polls")
	}
}

func watchBudget() time.Duration {
	return watchInterval * time.Duration(watchMaxAttempts)
}

// errStillRunning keeps the watch loop polling.
var errStillRunning = fmt.Errorf("task still running")

// watchScan polls the task status at a constant interval until it reaches
// a terminal state, then prints the findings. Retryable engine faults are
// polled through; any other fault ends the watch.
func watchScan(ctx context.Context, w io.Writer, client scanClient, taskID string) error {
	var last *orchestrator.StatusResult

	operation := func() error {
		status, err := client.GetStatus(ctx, taskID)
		if err != nil {
			if errors.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if last == nil || last.Status != status.Status || last.Progress != status.Progress {
			if outputFormat == outputText {
				printStatus(w, status)
			}
		}
		last = status
		if !status.Status.IsTerminal() {
			return errStillRunning
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(watchInterval), uint64(max(watchMaxAttempts-1, 0))),
		ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("stopped watching task %s: %w", taskID, ctx.Err())
		}
		if err == errStillRunning {
			return fmt.Errorf("task %s still %s after %d polls", taskID, last.Status, watchMaxAttempts)
		}
		return err
	}

	if last.Status != orchestrator.StatusDone {
		return printResult(w, last, func(w io.Writer) {
			fmt.Fprintf(w, "Task %s ended without a report\n", taskID)
		})
	}

	findings, err := client.GetFindings(ctx, taskID, true)
	if err != nil {
		return err
	}
	return printResult(w, findings, func(w io.Writer) {
		printFindings(w, findings)
	})
}
