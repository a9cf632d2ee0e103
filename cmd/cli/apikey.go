package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/gvmscan/internal/auth"
)

var apiKeyCost int

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate and hash API keys",
	Long: `Generate API keys for the REST API.

The server stores only bcrypt hashes. Add the printed hash to
api.api_key_hashes in the configuration and hand the key to the client.`,
}

var apiKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key and its hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		generated, err := auth.GenerateKey(apiKeyCost)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), generated, func(w io.Writer) {
			fmt.Fprintf(w, "API key:  %s\n", generated.Key)
			fmt.Fprintf(w, "Hash:     %s\n", generated.Hash)
			fmt.Fprintln(w, "\nThe key is shown only once. Add the hash to api.api_key_hashes.")
		})
	},
}

var apiKeyHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Hash an existing API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKey(args[0], apiKeyCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyGenerateCmd, apiKeyHashCmd)

	apiKeyCmd.PersistentFlags().IntVar(&apiKeyCost, "cost", auth.DefaultCost, "bcrypt cost")
}
