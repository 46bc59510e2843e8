package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Show whether the configured gateway is reachable and how many tools it serves.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, c, err := clientSetup(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	tools, err := c.Tools(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "Status: unreachable\n")
		fmt.Fprintf(out, "Server: %s\n", cfg.Client.BaseURL)
		return err
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "Server: %s%s\n", cfg.Client.BaseURL, cfg.Server.Prefix)
	fmt.Fprintf(out, "Tools: %d\n", len(tools))
	return nil
}
