package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harun/toolrun/pkg/client"
)

var (
	callArgs  string
	callAsync bool
	callWait  bool
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool on a running server",
	Long: `Invoke a tool and print its result. Background runs print the optimistic
result first; with --wait the final result follows once the run settles.`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")
	callCmd.Flags().BoolVar(&callAsync, "async", false, "ask the server to run the tool in the background")
	callCmd.Flags().BoolVar(&callWait, "wait", true, "wait for a background run to settle")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	toolArgs, err := parseObject("args", callArgs)
	if err != nil {
		return err
	}
	cfg, c, err := clientSetup(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tr := client.NewTracker(client.TrackerOptions{
		Client:       c,
		PollInterval: cfg.PollInterval(),
		Invoke:       client.InvokeOptions{Async: callAsync},
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if callWait {
		go func() { _ = tr.Watch(ctx) }()
	}

	view, err := tr.Invoke(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}
	return settle(ctx, out, tr, view, callWait)
}

// settle prints view and, when waiting, the final view of its run
func settle(ctx context.Context, out io.Writer, tr *client.Tracker, view client.View, wait bool) error {
	if err := printView(out, view); err != nil {
		return err
	}
	if view.Final || !wait {
		return nil
	}

	if _, err := tr.AwaitFinal(ctx, view.RunID); err != nil && tr.View().Error == "" {
		return err
	}
	final := tr.View()
	if err := printView(out, final); err != nil {
		return err
	}
	if final.Error != "" {
		return fmt.Errorf("run %s failed: %s", final.RunID, final.Error)
	}
	return nil
}

type viewOutput struct {
	RunID      string `json:"runId,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Optimistic bool   `json:"optimistic,omitempty"`
	Final      bool   `json:"final"`
}

func printView(w io.Writer, v client.View) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(viewOutput{
		RunID:      v.RunID,
		Result:     v.Result,
		Error:      v.Error,
		Optimistic: v.Optimistic,
		Final:      v.Final,
	})
}

func parseObject(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}
