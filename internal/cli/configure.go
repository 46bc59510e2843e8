package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolrun/internal/config"
)

var (
	configureShow  bool
	configureReset bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write or show the configuration file",
	Long: `Write the effective configuration (file, environment and defaults merged)
back to the config file, or print it with --show.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureShow, "show", false, "print the effective configuration instead of writing it")
	configureCmd.Flags().BoolVar(&configureReset, "reset", false, "write the defaults, discarding the current file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if configureReset {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if configureShow {
		shown := *cfg
		if shown.Oracle.APIKey != "" {
			shown.Oracle.APIKey = "[REDACTED]"
		}
		fmt.Fprintln(out, shown.String())
		return nil
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "You can now start the gateway with: toolrun serve")
	return nil
}
