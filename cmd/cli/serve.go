package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/gvmscan/internal/api"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/metrics"
)

const (
	systemMetricsInterval = 15 * time.Second
	readyPollInterval     = 100 * time.Millisecond
	readyPollAttempts     = 50
)

var (
	serveHost string
	servePort int
)

// serveCmd runs the REST API in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long: `Run the gvmscan REST API in the foreground.

The server exposes the scan lifecycle under /api/v1, health checks and
Prometheus metrics on /metrics. It stops gracefully on SIGINT or SIGTERM.`,
	Example: `  gvmscan serve
  gvmscan serve --config /etc/gvmscan/config.yaml --port 9090
  GVMSCAN_ENGINE_PASSWORD=secret gvmscan serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.API.ListenAddr = serveHost
	}
	if servePort != 0 {
		cfg.API.Port = servePort
	}

	logger := initLogging(cfg)
	pm := metrics.NewPrometheusMetrics()

	controller, err := newController(cfg, logger, pm)
	if err != nil {
		return err
	}

	server, err := api.New(cfg, controller, pm, logger)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting gvmscan",
		"version", version,
		"engine", cfg.GetEngineAddress(),
		"api", cfg.GetAPIAddress())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pm.StartPeriodicUpdates(ctx, systemMetricsInterval)
		return nil
	})
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		announceReady(ctx, server, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
		return err
	}

	logger.Info("gvmscan stopped")
	return nil
}

type readinessChecker interface {
	IsRunning() bool
	GetAddress() string
}

var errNotListening = fmt.Errorf("not accepting connections yet")

// announceReady logs once the server accepts connections, or warns when it
// does not within the polling window. It reports whether the server came up.
func announceReady(ctx context.Context, server readinessChecker, logger *logging.Logger) bool {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(readyPollInterval), readyPollAttempts),
		ctx)

	err := backoff.Retry(func() error {
		if !server.IsRunning() {
			return errNotListening
		}
		return nil
	}, policy)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("API server not accepting connections",
				"address", server.GetAddress(),
				"waited", readyPollInterval*readyPollAttempts)
		}
		return false
	}

	logger.Info("API server ready", "address", server.GetAddress())
	return true
}
