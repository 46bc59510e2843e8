package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

// ToolName is the registered name of the argument-filling tool
const ToolName = "oracle.fill_args"

// ToolOptions configures the oracle tool
type ToolOptions struct {
	Provider  Provider
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

func toolParameters() schema.Schema {
	return schema.Schema{
		"type":     "object",
		"required": []string{"tool", "parameters"},
		"properties": map[string]any{
			"tool":        map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"parameters":  map[string]any{"type": "object"},
			"partial":     map[string]any{"type": "object"},
			"instruction": map[string]any{"type": "string"},
		},
	}
}

// Spec returns the oracle.fill_args tool. It answers {"args": {...}} with the
// proposal for the named tool and never executes that tool.
func Spec(opts ToolOptions) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        ToolName,
		Description: "Propose arguments for a tool from its schema and the values already known",
		Parameters:  toolParameters(),
		Tags:        []string{"oracle"},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			return fillArgs(ctx, opts, args)
		}),
	}
}

func fillArgs(ctx context.Context, opts ToolOptions, args map[string]any) (any, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("no oracle provider configured")
	}

	name, _ := args["tool"].(string)
	description, _ := args["description"].(string)
	params, _ := args["parameters"].(map[string]any)
	partial, _ := args["partial"].(map[string]any)
	instruction, _ := args["instruction"].(string)
	if partial == nil {
		partial = map[string]any{}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	proposal, err := opts.Provider.Propose(ctx, Request{
		Model: opts.Model,
		Function: toolexecutor.FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  schema.Schema(params),
		},
		Partial:     partial,
		Instruction: instruction,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		opts.Logger.Warn().Err(err).Str("provider", opts.Provider.Provider()).Str("target", name).Msg("Oracle proposal failed")
		return nil, fmt.Errorf("%s proposal for %s: %w", opts.Provider.Provider(), name, err)
	}

	opts.Logger.Debug().
		Str("provider", opts.Provider.Provider()).
		Str("target", name).
		Int("fields", len(proposal)).
		Dur("duration", time.Since(start)).
		Msg("Oracle proposed arguments")
	return map[string]any{"args": proposal}, nil
}
