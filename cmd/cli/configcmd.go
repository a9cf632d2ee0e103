package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anstrom/gvmscan/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with the defaults",
	Long: `Write the default configuration to path (./config.yaml when omitted).

The engine password is left empty; set GVMSCAN_ENGINE_PASSWORD or edit
the file before running scans. An existing file is kept unless --force
is given.`,
	Example: `  gvmscan config init
  gvmscan config init /etc/gvmscan/config.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}
