// Package cli provides command-line interface commands for the gvmscan
// orchestration engine. It implements the Cobra-based CLI structure with
// commands for serving the REST API, driving scans and querying the engine.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/gvmscan/internal/config"
	"github.com/anstrom/gvmscan/internal/logging"
)

const envPrefix = "GVMSCAN"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gvmscan",
	Short: "GVM/OpenVAS scan orchestrator",
	Long: `gvmscan drives vulnerability scans on a Greenbone (GVM/OpenVAS) engine.

It resolves or creates the engine target for a host, picks a scanner,
creates and starts the task, and reports status and findings. Run it as
a REST service with 'serve' or use the scan commands directly.`,
	Version:      getVersion(),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("engine-host", "", "engine management host (overrides config)")
	rootCmd.PersistentFlags().Int("engine-port", 0, "engine management port (overrides config)")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"verbose":     "verbose",
		"engine.host": "engine-host",
		"engine.port": "engine-port",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", flag, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// GVMSCAN_ENGINE_PASSWORD and friends
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range overrideKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// overrideKeys are the settings that environment variables and flags may
// override on top of the config file.
var overrideKeys = []string{
	"engine.host",
	"engine.port",
	"engine.username",
	"engine.password",
	"api.port",
	"logging.level",
}

// loadConfig loads the config file found by viper and applies environment
// and flag overrides, then validates the result.
func loadConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg, viper.GetViper())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if s := v.GetString("engine.host"); s != "" {
		cfg.Engine.Host = s
	}
	if p := v.GetInt("engine.port"); p != 0 {
		cfg.Engine.Port = p
	}
	if s := v.GetString("engine.username"); s != "" {
		cfg.Engine.Username = s
	}
	if s := v.GetString("engine.password"); s != "" {
		cfg.Engine.Password = s
	}
	if p := v.GetInt("api.port"); p != 0 {
		cfg.API.Port = p
	}
	if s := v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = logging.LogLevel(s)
	}
	if v.GetBool("verbose") {
		cfg.Logging.Level = logging.LevelDebug
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging builds the process logger from configuration and installs it
// as the default.
func initLogging(cfg *config.Config) *logging.Logger {
	logConfig := cfg.Logging
	logConfig.AddSource = logConfig.Level == logging.LevelDebug

	logger, err := logging.New(logConfig)
	if err != nil {
		// Fall back to default if creation fails
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	logging.SetDefault(logger)
	return logger
}
