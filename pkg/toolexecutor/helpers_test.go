package toolexecutor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/schema"
)

func sumSchema() schema.Schema {
	return schema.Schema{
		"type":     "object",
		"required": []string{"a", "b"},
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
	}
}

func sumSpec() ToolSpec {
	return ToolSpec{
		Name:        "sum",
		Description: "Add two numbers",
		Parameters:  sumSchema(),
		Strategy: HandlerStrategy(func(ctx context.Context, ec *ExecutionContext, args map[string]any) (any, error) {
			return map[string]any{"total": num(args["a"]) + num(args["b"])}, nil
		}),
	}
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func echo(ctx context.Context, ec *ExecutionContext, args map[string]any) (any, error) {
	return args, nil
}

type testEnv struct {
	registry *Registry
	bus      *eventbus.Bus
	runner   *Runner
}

func newTestEnv(t *testing.T, specs ...ToolSpec) *testEnv {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	for _, s := range specs {
		_, err := reg.Define(s)
		require.NoError(t, err)
	}
	bus := eventbus.New(eventbus.Options{Logger: zerolog.Nop()})
	return &testEnv{
		registry: reg,
		bus:      bus,
		runner:   New(Options{Registry: reg, Bus: bus, Logger: zerolog.Nop()}),
	}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
