// Package toolexecutor registers tools and runs them.
//
// Invariants:
// - Tool names are unique and map to unique wire names.
// - Input is schema-validated and coerced before any step executes.
// - Steps of one invocation run sequentially; a failing step aborts the call.
// - A paused plan returns a planner.PauseSignal as a successful result.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry(logger)
//	_, _ = reg.Define(toolexecutor.ToolSpec{
//		Name:       "sum",
//		Parameters: schema.Schema{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}},
//		Strategy: toolexecutor.HandlerStrategy(func(ctx context.Context, ec *toolexecutor.ExecutionContext, args map[string]any) (any, error) {
//			return args["a"], nil
//		}),
//	})
//	runner := toolexecutor.New(toolexecutor.Options{Registry: reg, Logger: logger})
//	result, err := runner.Call(ctx, "sum", map[string]any{"a": "2"}, nil)
package toolexecutor
