// Package coretools provides the built-in tools served by toolrun.
package coretools

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/kvstore"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

// DefaultConfirmTimeout bounds how long await_confirmation waits for a reply
const DefaultConfirmTimeout = 5 * time.Minute

// Options configures core tool registration.
type Options struct {
	KV             kvstore.Store
	Now            func() time.Time
	ConfirmTimeout time.Duration
	Logger         zerolog.Logger
}

// RegisterCoreTools registers the built-in tools. The kv.* tools and the
// plans built on them are skipped when no store is configured.
func RegisterCoreTools(reg *toolexecutor.Registry, opts Options) error {
	if reg == nil {
		return errors.New("tool registry is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}

	tools := []toolexecutor.ToolSpec{
		sumTool(),
		echoTool(),
		clockTool(opts),
		awaitConfirmationTool(opts),
	}
	if opts.KV != nil {
		tools = append(tools,
			kvGetTool(opts),
			kvListTool(opts),
			kvSetTool(opts),
			kvDeleteTool(opts),
			approveThenDeleteTool(),
			kvArchiveTool(opts),
		)
	}

	for _, tool := range tools {
		if _, err := reg.Define(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	opts.Logger.Debug().Int("tools", len(tools)).Msg("Core tools registered")
	return nil
}

// number reads a validated numeric argument
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	return 0
}
