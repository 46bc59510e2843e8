package coretools

import (
	"context"
	"strings"
	"time"

	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

func sumTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "sum",
		Description: "Add two numbers",
		Parameters: schema.Schema{
			"type":     "object",
			"required": []string{"a", "b"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number", "description": "First operand"},
				"b": map[string]any{"type": "number", "description": "Second operand"},
			},
		},
		Optimistic: func(args map[string]any) any {
			return map[string]any{"total": nil}
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			return map[string]any{"total": number(args["a"]) + number(args["b"])}, nil
		}),
	}
}

func echoTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "echo",
		Description: "Return the message, optionally repeated",
		Safe:        true,
		Parameters: schema.Schema{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"times":   map[string]any{"type": "integer", "minimum": 1, "maximum": 100, "default": 1},
			},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			msg, _ := args["message"].(string)
			times := int(number(args["times"]))
			if times < 1 {
				times = 1
			}
			return map[string]any{"message": strings.Repeat(msg, times)}, nil
		}),
	}
}

func clockTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "clock.now",
		Description: "Current time, optionally in a named IANA zone",
		Safe:        true,
		Parameters: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"zone": map[string]any{"type": "string", "description": "IANA zone name, e.g. Europe/Berlin"},
			},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			now := opts.Now()
			if zone, _ := args["zone"].(string); zone != "" {
				loc, err := time.LoadLocation(zone)
				if err != nil {
					return nil, schema.NewValidationError("zone", err.Error())
				}
				now = now.In(loc)
			}
			return map[string]any{
				"time": now.Format(time.RFC3339),
				"unix": now.Unix(),
				"zone": now.Location().String(),
			}, nil
		}),
	}
}
