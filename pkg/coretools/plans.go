package coretools

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

func confirmParameters() schema.Schema {
	return schema.Schema{
		"type":     "object",
		"required": []string{"key"},
		"properties": map[string]any{
			"key":       keyProperty(),
			"confirmed": map[string]any{"type": "boolean", "default": false},
		},
	}
}

// approveThenDeleteTool pauses for confirmation, then deletes. The second
// step is resolved from the resumed input, so a declined confirmation never
// reaches kv.delete.
func approveThenDeleteTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "approve_then_delete",
		Description: "Delete a key after explicit confirmation",
		Tags:        []string{"kv", "plan"},
		Parameters:  confirmParameters(),
		Strategy: toolexecutor.PlanStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) ([]toolexecutor.Step, error) {
			key, _ := args["key"].(string)
			confirm := toolexecutor.Inline("confirm", func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
				if confirmed, _ := args["confirmed"].(bool); confirmed {
					return map[string]any{"key": key, "confirmed": true}, nil
				}
				return planner.Pause(map[string]any{
					"message": fmt.Sprintf("Delete %q?", key),
					"key":     key,
				}), nil
			})

			if confirmed, _ := args["confirmed"].(bool); !confirmed {
				return []toolexecutor.Step{confirm, toolexecutor.Inline("declined", func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
					return map[string]any{"key": key, "deleted": false, "declined": true}, nil
				})}, nil
			}
			return []toolexecutor.Step{confirm, toolexecutor.Delegate("kv.delete", map[string]any{"key": key})}, nil
		}),
	}
}

// kvArchiveTool copies a key under archive/ once approve_then_delete has
// removed it. Pausing inside the delegated plan yields a nested checkpoint.
func kvArchiveTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "kv.archive",
		Description: "Move a key under archive/ after confirmation",
		Tags:        []string{"kv", "plan"},
		Parameters:  confirmParameters(),
		Strategy: toolexecutor.StepsStrategy(
			toolexecutor.Delegate("approve_then_delete", nil),
			toolexecutor.Inline("archive", func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				removed, _ := ec.Last().(map[string]any)
				if deleted, _ := removed["deleted"].(bool); !deleted {
					return map[string]any{"key": key, "archived": false}, nil
				}
				target := "archive/" + key
				if err := opts.KV.Set(ctx, target, removed["value"]); err != nil {
					return nil, err
				}
				return map[string]any{"key": key, "archived": true, "to": target}, nil
			}),
		),
	}
}

// awaitConfirmationTool opens a form on the push channel and blocks until a
// run:resume signal for its run arrives.
func awaitConfirmationTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "await_confirmation",
		Description: "Ask the user to confirm and wait for the reply",
		Async:       true,
		Tags:        []string{"ui"},
		Parameters: schema.Schema{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message":         map[string]any{"type": "string"},
				"timeout_seconds": map[string]any{"type": "integer", "minimum": 1},
			},
		},
		Optimistic: func(args map[string]any) any {
			return map[string]any{"status": "awaiting"}
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			timeout := opts.ConfirmTimeout
			if s := number(args["timeout_seconds"]); s > 0 {
				timeout = time.Duration(s) * time.Second
			}

			ui := ec.UI()
			payload, err := ec.AwaitResume(ctx, toolexecutor.ResumeOptions{
				Timeout: timeout,
				OnReady: func() {
					ui.Open(map[string]any{
						"form":    "confirm",
						"message": args["message"],
						"runId":   ec.RunID,
					})
				},
			})
			ui.Close(map[string]any{"form": "confirm"})
			if err != nil {
				return nil, err
			}

			confirmed, _ := payload["confirmed"].(bool)
			return map[string]any{"confirmed": confirmed, "reply": payload}, nil
		}),
	}
}
