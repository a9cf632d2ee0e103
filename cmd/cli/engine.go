package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/gmp"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/metrics"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

// scanClient is the part of the orchestrator the scan and engine commands
// drive.
type scanClient interface {
	StartScan(ctx context.Context, host, scanType string) (*orchestrator.ScanResult, error)
	RetryStart(ctx context.Context, taskID string) (*orchestrator.ScanResult, error)
	StopScan(ctx context.Context, taskID string) (*orchestrator.StopResult, error)
	GetStatus(ctx context.Context, taskID string) (*orchestrator.StatusResult, error)
	GetFindings(ctx context.Context, taskID string, requireDone bool) (*orchestrator.FindingsResult, error)
	EngineVersion(ctx context.Context) (*orchestrator.VersionResult, error)
}

var _ scanClient = (*orchestrator.Controller)(nil)

// newScanClient builds the client used by one-shot commands. Tests replace it.
var newScanClient = func(cfg *config.Config, logger *logging.Logger) (scanClient, error) {
	return newController(cfg, logger, metrics.Nop{})
}

func newController(cfg *config.Config, logger *logging.Logger, rec metrics.Recorder) (*orchestrator.Controller, error) {
	dialer, err := gmp.NewDialer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure engine connection: %w", err)
	}
	return orchestrator.NewController(dialer, cfg, logger, orchestrator.WithMetrics(rec)), nil
}

const defaultCommandTimeout = 2 * time.Minute

// commandTimeout bounds one engine operation of a one-shot command.
var commandTimeout = defaultCommandTimeout

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Query the scan engine",
}

var engineVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the engine's management protocol version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, commandTimeout, func(ctx context.Context, client scanClient) error {
			result, err := client.EngineVersion(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Engine protocol version: %s\n", result.Version)
			})
		})
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", defaultCommandTimeout,
		"timeout for each engine operation")
	rootCmd.AddCommand(engineCmd)
	engineCmd.AddCommand(engineVersionCmd)
}

// withClient loads configuration, builds a client and runs fn under timeout.
func withClient(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, client scanClient) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// One-shot commands keep stdout for results.
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger := initLogging(cfg)

	client, err := newScanClient(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(ctx, client)
}
