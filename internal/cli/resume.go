package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/toolrun/pkg/client"
	"github.com/harun/toolrun/pkg/gateway"
	"github.com/harun/toolrun/pkg/planner"
)

var (
	resumeCheckpoint string
	resumePayload    string
	resumeRunID      string
	resumeAsync      bool
	resumeWait       bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused plan from its checkpoint",
	Long: `Resume a paused plan. --checkpoint names a file holding either the
checkpoint itself or the whole paused result printed by "toolrun call".`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeCheckpoint, "checkpoint", "", "file holding the checkpoint JSON")
	resumeCmd.Flags().StringVar(&resumePayload, "payload", "{}", "resume payload as a JSON object")
	resumeCmd.Flags().StringVar(&resumeRunID, "run-id", "", "paused run to move back to running")
	resumeCmd.Flags().BoolVar(&resumeAsync, "async", false, "resume in the background")
	resumeCmd.Flags().BoolVar(&resumeWait, "wait", true, "wait for a background run to settle")
	_ = resumeCmd.MarkFlagRequired("checkpoint")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cp, err := readCheckpoint(resumeCheckpoint)
	if err != nil {
		return err
	}
	payload, err := parseObject("payload", resumePayload)
	if err != nil {
		return err
	}
	cfg, c, err := clientSetup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tr := client.NewTracker(client.TrackerOptions{Client: c, PollInterval: cfg.PollInterval()})
	if resumeWait {
		go func() { _ = tr.Watch(ctx) }()
	}

	inv, err := c.Resume(ctx, gateway.ResumeRequest{
		Checkpoint: cp,
		Payload:    payload,
		RunID:      resumeRunID,
	}, client.InvokeOptions{Async: resumeAsync})
	if err != nil {
		return err
	}
	return settle(ctx, cmd.OutOrStdout(), tr, tr.Track(inv), resumeWait)
}

// readCheckpoint accepts a bare checkpoint, a pause payload, or a printed view
func readCheckpoint(path string) (*planner.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("checkpoint file is not a JSON object: %w", err)
	}
	if result, ok := doc["result"].(map[string]any); ok {
		doc = result
	}
	if sig, ok := planner.AsPause(doc); ok && sig.Checkpoint != nil {
		if err := sig.Checkpoint.Validate(); err != nil {
			return nil, err
		}
		return sig.Checkpoint, nil
	}

	var cp planner.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}
