package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/internal/metrics"
	"github.com/harun/toolrun/internal/tracing"
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/schema"
)

const tracerName = "toolrun.toolexecutor"

// RemoteCaller invokes a tool on another process
type RemoteCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// RemoteResumer resumes a checkpoint owned by another process
type RemoteResumer interface {
	ResumeTool(ctx context.Context, cp *planner.Checkpoint, payload map[string]any) (any, error)
}

// Options configures a Runner
type Options struct {
	Registry *Registry
	Bus      *eventbus.Bus
	// Remote handles names not registered locally and RunServer tools.
	Remote RemoteCaller
	// OracleTool is the tool Plan asks for argument proposals.
	OracleTool string
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Runner dispatches tool calls
type Runner struct {
	registry *Registry
	bus      *eventbus.Bus
	remote   RemoteCaller
	oracle   string
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	plans    *planner.Executor
}

// New creates a new Runner
func New(opts Options) *Runner {
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.Logger)
	}
	return &Runner{
		registry: opts.Registry,
		bus:      opts.Bus,
		remote:   opts.Remote,
		oracle:   opts.OracleTool,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		plans:    planner.NewExecutor(opts.Logger),
	}
}

// Registry returns the registry the runner resolves names in
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Bus returns the event bus, which may be nil
func (r *Runner) Bus() *eventbus.Bus {
	return r.bus
}

// Call invokes name with args. parent places the call inside an existing
// run; nil starts a new run. A paused plan returns a *planner.PauseSignal.
func (r *Runner) Call(ctx context.Context, name string, args map[string]any, parent *ExecutionContext) (any, error) {
	start := time.Now()

	spec := r.registry.Find(name)
	if spec == nil {
		if r.remote == nil {
			r.metrics.ObserveToolCall(name, metrics.StatusNotFound, time.Since(start))
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		result, err := r.callRemote(ctx, name, args)
		r.observe(name, result, err, time.Since(start))
		return result, err
	}

	var ec *ExecutionContext
	if parent != nil {
		ec = parent.child(name)
	} else {
		ec = r.NewContext(name, tracing.GetRunID(ctx))
	}

	ctx = tracing.NewRunContext(ctx, name, ec.RunID)
	ctx, span := tracing.StartToolSpan(ctx, tracerName, "tool.call", name, ec.RunID)
	if parent == nil {
		ec.logger = tracing.LoggerFromContext(ctx, r.logger)
	}
	result, err := r.invoke(ctx, spec, ec, args)
	tracing.EndSpan(span, err)

	r.observe(name, result, err, time.Since(start))
	return result, err
}

// Validate checks args against the parameters of name without running it
// and returns the coerced input. Tools with a BeforeRun hint, tools forwarded
// to the server and unregistered remote tools pass unchecked and are
// validated when they run.
func (r *Runner) Validate(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	spec := r.registry.Find(name)
	if spec == nil {
		if r.remote == nil {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		return args, nil
	}
	if spec.BeforeRun != nil || (spec.RunServer && r.remote != nil) {
		return args, nil
	}

	compiled, err := r.registry.compiledParameters(ctx, spec, r.NewContext(name, ""))
	if err != nil {
		return nil, &ExecutionError{Tool: name, Step: -1, Err: err}
	}
	return validate(name, compiled, args)
}

func (r *Runner) invoke(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, args map[string]any) (any, error) {
	logger := ec.logger

	if spec.BeforeRun != nil {
		hint, err := spec.BeforeRun(ctx, ec, args)
		if err != nil {
			return nil, wrapStepError(spec.Name, -1, err)
		}
		args = planner.MergeInput(args, hint)
	}

	if spec.RunServer && r.remote != nil {
		logger.Debug().Msg("Forwarding tool to server")
		result, err := r.callRemote(ctx, spec.Name, args)
		if err != nil {
			return nil, err
		}
		return r.afterRun(ctx, spec, ec, args, result)
	}

	compiled, err := r.registry.compiledParameters(ctx, spec, ec)
	if err != nil {
		return nil, &ExecutionError{Tool: spec.Name, Step: -1, Err: err}
	}
	input, err := validate(spec.Name, compiled, args)
	if err != nil {
		logger.Debug().Err(err).Msg("Parameter validation failed")
		return nil, err
	}
	ec.setInput(input)

	steps, err := r.resolveSteps(ctx, spec, ec, input)
	if err != nil {
		return nil, err
	}

	logger.Debug().Int("steps", len(steps)).Msg("Executing tool")

	result, err := r.runSteps(ctx, spec, ec, compiled, steps, 0, nil)
	if err != nil {
		return nil, err
	}
	if spec.Strategy.Kind() == StrategyNone {
		return result, nil
	}
	return r.afterRun(ctx, spec, ec, input, result)
}

// resolveSteps turns the spec's strategy into an ordered step list
func (r *Runner) resolveSteps(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, input map[string]any) ([]Step, error) {
	st := spec.Strategy
	var (
		steps []Step
		err   error
	)

	switch st.kind {
	case StrategyHandler:
		steps = []Step{{Name: spec.Name, Run: st.handler}}
	case StrategySteps:
		if st.resolve != nil {
			steps, err = st.resolve(ctx, ec)
		} else {
			steps = append([]Step(nil), st.steps...)
		}
	case StrategyPlan:
		steps, err = st.plan(ctx, ec, input)
	default:
		if spec.AfterRun == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoExecutableHandler, spec.Name)
		}
		stub := spec.AfterRun
		steps = []Step{{Name: "stub", Run: func(ctx context.Context, ec *ExecutionContext, args map[string]any) (any, error) {
			return stub(ctx, ec, args, nil)
		}}}
	}

	if err != nil {
		return nil, wrapStepError(spec.Name, -1, fmt.Errorf("resolve steps: %w", err))
	}
	if len(steps) == 0 {
		return nil, &ExecutionError{Tool: spec.Name, Step: -1, Err: errors.New("resolved an empty step list")}
	}
	return steps, nil
}

// stepOverride replaces the body of one step, used to re-enter a nested plan
type stepOverride struct {
	index int
	run   func(ctx context.Context) (any, error)
}

func (r *Runner) runSteps(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, compiled *schema.Compiled, steps []Step, start int, override *stepOverride) (any, error) {
	planSteps := make([]planner.Step, len(steps))
	for i, s := range steps {
		planSteps[i] = planner.Step{Name: s.Name, Delegate: s.Tool}
	}
	plan, err := planner.NewPlan(spec.Name, planSteps)
	if err != nil {
		return nil, &ExecutionError{Tool: spec.Name, Step: -1, Err: err}
	}

	result, err := r.plans.Execute(ctx, plan, start, func(ctx context.Context, i int, _ *planner.Step) (any, error) {
		var (
			res any
			err error
		)
		if override != nil && override.index == i {
			res, err = override.run(ctx)
		} else {
			res, err = r.runStep(ctx, spec, ec, compiled, i, steps[i])
		}
		if err == nil {
			ec.setLast(res)
		}
		return res, err
	}, ec.Snapshot)
	if err != nil {
		var se *planner.StepError
		if errors.As(err, &se) {
			return nil, se.Err
		}
		return nil, err
	}

	if sig, ok := planner.AsPause(result); ok {
		r.metrics.PlanPaused(spec.Name)
		return sig, nil
	}
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, compiled *schema.Compiled, index int, step Step) (any, error) {
	args := step.Args
	if args == nil {
		args = ec.Input()
	}

	if step.Tool != "" {
		return r.Call(ctx, step.Tool, args, ec)
	}
	if step.Run == nil {
		return nil, fmt.Errorf("%w: %s step %d", ErrNoExecutableHandler, spec.Name, index)
	}

	validated, err := validate(spec.Name, compiled, args)
	if err != nil {
		return nil, err
	}

	result, err := step.Run(ctx, ec, validated)
	if err != nil {
		return nil, wrapStepError(spec.Name, index, err)
	}
	return result, nil
}

func (r *Runner) afterRun(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, args map[string]any, result any) (any, error) {
	if spec.AfterRun == nil {
		return result, nil
	}
	if _, paused := planner.AsPause(result); paused {
		return result, nil
	}
	out, err := spec.AfterRun(ctx, ec, args, result)
	if err != nil {
		return nil, wrapStepError(spec.Name, -1, err)
	}
	return out, nil
}

func (r *Runner) callRemote(ctx context.Context, name string, args map[string]any) (any, error) {
	r.logger.Debug().Str("tool", name).Msg("Calling remote tool")
	result, err := r.remote.CallTool(ctx, name, args)
	if err != nil {
		r.logger.Warn().Err(err).Str("tool", name).Msg("Remote tool call failed")
		return nil, err
	}
	if sig, ok := planner.AsPause(result); ok {
		return sig, nil
	}
	return result, nil
}

func (r *Runner) observe(name string, result any, err error, d time.Duration) {
	status := metrics.StatusOK
	switch {
	case err == nil:
		if _, ok := planner.AsPause(result); ok {
			status = metrics.StatusPaused
		}
	case schema.IsValidationError(err):
		status = metrics.StatusInvalid
	case errors.Is(err, ErrToolNotFound):
		status = metrics.StatusNotFound
	case IsTransportError(err):
		status = metrics.StatusRemoteFail
	default:
		status = metrics.StatusError
	}
	r.metrics.ObserveToolCall(name, status, d)

	event := r.logger.Debug()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.Str("tool", name).Str("status", status).Dur("duration", d).Msg("Tool call finished")
}

func validate(tool string, compiled *schema.Compiled, args map[string]any) (map[string]any, error) {
	out, err := compiled.Validate(args)
	if err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) && ve.Tool == "" {
			ve.Tool = tool
		}
		return nil, err
	}
	if m, ok := out.(map[string]any); ok {
		return m, nil
	}
	// Non-object schemas pass input through unchanged.
	return planner.MergeInput(args, nil), nil
}
