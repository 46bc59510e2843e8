package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolrun/pkg/toolexecutor"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool manifest of a running server",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "json", "output format (json, yaml)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	_, c, err := clientSetup(cmd)
	if err != nil {
		return err
	}
	manifest, err := c.Manifest(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return writeManifest(cmd.OutOrStdout(), manifest, toolsFormat)
}

func writeManifest(w io.Writer, manifest []toolexecutor.FunctionTool, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(manifest)
	}
	return fmt.Errorf("unknown format %q (must be: json, yaml)", format)
}
