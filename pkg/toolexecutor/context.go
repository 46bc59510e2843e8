package toolexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/internal/tracing"
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/planner"
)

// NewRunID generates a new run ID
func NewRunID() string {
	return tracing.NewRunID()
}

// ExecutionContext is the capability object handed to tool code. One is
// created per tool invocation; delegated calls get their own context that
// shares the run ID.
type ExecutionContext struct {
	Tool  string
	RunID string

	runner *Runner
	logger zerolog.Logger

	mu    sync.Mutex
	input map[string]any
	vars  map[string]any
	last  any
}

// NewContext creates a context for tool bound to the runner. An empty runID
// generates one.
func (r *Runner) NewContext(tool, runID string) *ExecutionContext {
	if runID == "" {
		runID = NewRunID()
	}
	return &ExecutionContext{
		Tool:   tool,
		RunID:  runID,
		runner: r,
		logger: r.logger.With().Str("tool", tool).Str("run_id", runID).Logger(),
		input:  map[string]any{},
		vars:   map[string]any{},
	}
}

// detachedContext has no runner; its capabilities fail. Parameter resolvers
// called for the manifest receive one.
func detachedContext(tool string) *ExecutionContext {
	return &ExecutionContext{
		Tool:   tool,
		RunID:  NewRunID(),
		logger: zerolog.Nop(),
		input:  map[string]any{},
		vars:   map[string]any{},
	}
}

// child creates the context for a tool called within the same run
func (ec *ExecutionContext) child(tool string) *ExecutionContext {
	if ec.runner == nil {
		return detachedContext(tool)
	}
	return ec.runner.NewContext(tool, ec.RunID)
}

// Logger returns a logger tagged with the tool and run ID
func (ec *ExecutionContext) Logger() zerolog.Logger {
	return ec.logger
}

// Input returns a copy of the accumulated input
func (ec *ExecutionContext) Input() map[string]any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return planner.MergeInput(ec.input, nil)
}

// Set stores a value that survives a pause
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.vars[key] = value
}

// Var returns a value stored with Set
func (ec *ExecutionContext) Var(key string) (any, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	v, ok := ec.vars[key]
	return v, ok
}

// Last returns the result of the previous step
func (ec *ExecutionContext) Last() any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.last
}

// Snapshot captures the resumable state
func (ec *ExecutionContext) Snapshot() planner.Snapshot {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	snap := planner.Snapshot{Input: planner.MergeInput(ec.input, nil)}
	if len(ec.vars) > 0 {
		snap.Vars = planner.MergeInput(ec.vars, nil)
	}
	return snap
}

func (ec *ExecutionContext) setInput(input map[string]any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.input = planner.MergeInput(input, nil)
}

func (ec *ExecutionContext) setLast(v any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.last = v
}

func (ec *ExecutionContext) restore(snap planner.Snapshot) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for k, v := range snap.Vars {
		ec.vars[k] = v
	}
}

// Call invokes another tool within the same run
func (ec *ExecutionContext) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	return ec.CallWith(ctx, name, args, ec)
}

// CallWith invokes another tool within the run of parent
func (ec *ExecutionContext) CallWith(ctx context.Context, name string, args map[string]any, parent *ExecutionContext) (any, error) {
	if ec.runner == nil {
		return nil, fmt.Errorf("tool %s: context has no runner", ec.Tool)
	}
	if parent == nil {
		parent = ec
	}
	return ec.runner.Call(ctx, name, args, parent)
}

// UI publishes interface hints for this run
func (ec *ExecutionContext) UI() UI {
	return UI{ec: ec}
}

// UI publishes ui:* events tagged with the tool and run ID. Publishing never
// blocks and nothing waits for a reply.
type UI struct {
	ec *ExecutionContext
}

// Emit publishes a hint of kind. Kinds other than ui:* are ignored.
func (u UI) Emit(kind eventbus.Kind, payload any) {
	if !kind.IsUI() {
		u.ec.logger.Warn().Str("event", string(kind)).Msg("Ignoring non-UI event")
		return
	}
	if u.ec.runner == nil || u.ec.runner.bus == nil {
		return
	}
	u.ec.runner.bus.Publish(kind, u.ec.RunID, u.ec.Tool, eventbus.UIHint{
		RunID:   u.ec.RunID,
		Tool:    u.ec.Tool,
		Payload: payload,
	})
}

// Open publishes ui:open
func (u UI) Open(payload any) { u.Emit(eventbus.KindUIOpen, payload) }

// Update publishes ui:update
func (u UI) Update(payload any) { u.Emit(eventbus.KindUIUpdate, payload) }

// Loading publishes ui:loading
func (u UI) Loading(payload any) { u.Emit(eventbus.KindUILoading, payload) }

// Close publishes ui:close
func (u UI) Close(payload any) { u.Emit(eventbus.KindUIClose, payload) }

// ResumeOptions configures AwaitResume
type ResumeOptions struct {
	// Timeout of zero waits until ctx is done.
	Timeout time.Duration
	// Predicate filters signals; nil accepts the first one for the run.
	Predicate func(payload map[string]any) bool
	// OnReady runs once the subscription is in place, so a UI prompt
	// published from it cannot race the reply.
	OnReady func()
}

// AwaitResume blocks until a run:resume signal for this run arrives and
// returns its payload.
func (ec *ExecutionContext) AwaitResume(ctx context.Context, opts ResumeOptions) (map[string]any, error) {
	if ec.runner == nil || ec.runner.bus == nil {
		return nil, fmt.Errorf("tool %s: no event bus to await resume on", ec.Tool)
	}

	sub := ec.runner.bus.Subscribe(eventbus.KindRunResume)
	defer sub.Close()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ec.logger.Info().Dur("timeout", opts.Timeout).Msg("Awaiting resume signal")
	if opts.OnReady != nil {
		opts.OnReady()
	}

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil, fmt.Errorf("tool %s: event bus closed", ec.Tool)
			}
			if ev.RunID != ec.RunID {
				continue
			}
			payload := resumePayload(ev.Data)
			if opts.Predicate != nil && !opts.Predicate(payload) {
				continue
			}
			ec.logger.Info().Msg("Resume signal received")
			return payload, nil

		case <-ctx.Done():
			if opts.Timeout > 0 && ctx.Err() == context.DeadlineExceeded {
				ec.logger.Warn().Dur("timeout", opts.Timeout).Msg("Resume signal timed out")
				return nil, fmt.Errorf("%w after %v", ErrResumeTimeout, opts.Timeout)
			}
			return nil, ctx.Err()
		}
	}
}

func resumePayload(data any) map[string]any {
	switch d := data.(type) {
	case eventbus.RunResume:
		return d.Payload
	case *eventbus.RunResume:
		return d.Payload
	case map[string]any:
		return d
	}
	return nil
}

// Plan asks the oracle tool to propose arguments for tool without executing
// it. Keys in partial override the proposal; the result is coerced against
// the target's schema.
func (ec *ExecutionContext) Plan(ctx context.Context, tool string, partial map[string]any) (map[string]any, error) {
	if ec.runner == nil {
		return nil, fmt.Errorf("tool %s: context has no runner", ec.Tool)
	}
	return ec.runner.planArguments(ctx, ec, tool, partial)
}
