package coretools

import (
	"context"
	"errors"

	"github.com/harun/toolrun/pkg/kvstore"
	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

func keyProperty() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func kvGetTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "kv.get",
		Description: "Read a value from the key/value store",
		Safe:        true,
		Tags:        []string{"kv"},
		Parameters: schema.Schema{
			"type":       "object",
			"required":   []string{"key"},
			"properties": map[string]any{"key": keyProperty()},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			v, err := opts.KV.Get(ctx, key)
			if errors.Is(err, kvstore.ErrNotFound) {
				return map[string]any{"key": key, "found": false}, nil
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": key, "found": true, "value": v}, nil
		}),
	}
}

func kvListTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "kv.list",
		Description: "List keys, optionally under a prefix",
		Safe:        true,
		Tags:        []string{"kv"},
		Parameters: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"prefix": map[string]any{"type": "string", "default": ""},
			},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			prefix, _ := args["prefix"].(string)
			keys, err := opts.KV.List(ctx, prefix)
			if err != nil {
				return nil, err
			}
			return map[string]any{"keys": keys}, nil
		}),
	}
}

func kvSetTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "kv.set",
		Description: "Store a value under a key",
		Tags:        []string{"kv"},
		Parameters: schema.Schema{
			"type":     "object",
			"required": []string{"key", "value"},
			"properties": map[string]any{
				"key":   keyProperty(),
				"value": map[string]any{"description": "Any JSON value"},
			},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			if err := opts.KV.Set(ctx, key, args["value"]); err != nil {
				return nil, err
			}
			logger := ec.Logger()
			logger.Debug().Str("key", key).Msg("Stored value")
			return map[string]any{"key": key, "stored": true}, nil
		}),
	}
}

// kvDeleteTool returns the removed value so callers further down a plan can
// still use it.
func kvDeleteTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "kv.delete",
		Description: "Remove a key and return its last value",
		Tags:        []string{"kv"},
		Parameters: schema.Schema{
			"type":       "object",
			"required":   []string{"key"},
			"properties": map[string]any{"key": keyProperty()},
		},
		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			prev, err := opts.KV.Get(ctx, key)
			if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
				return nil, err
			}
			deleted, err := opts.KV.Delete(ctx, key)
			if err != nil {
				return nil, err
			}
			out := map[string]any{"key": key, "deleted": deleted}
			if deleted {
				out["value"] = prev
				logger := ec.Logger()
				logger.Info().Str("key", key).Msg("Deleted key")
			}
			return out, nil
		}),
	}
}
