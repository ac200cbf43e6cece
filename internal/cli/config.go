package cli

import (
	"encoding/json"
	"fmt"

	"driftwatch/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the effective configuration",
	Long: `Load the configuration from the environment and flags, validate it and
print it as JSON with secrets redacted.

Unlike "driftwatch run", this command exits non-zero when the configuration
is invalid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	},
}

func init() {
	configCmd.Long += "\n\n" + config.Usage()
	rootCmd.AddCommand(configCmd)
}
