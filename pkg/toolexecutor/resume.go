package toolexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/toolrun/internal/tracing"
	"github.com/harun/toolrun/pkg/planner"
)

// Resume continues a paused plan with payload merged into its input. The
// step list is regenerated from the merged input and execution re-enters
// after the paused step; steps before it are not run again.
func (r *Runner) Resume(ctx context.Context, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	return r.ResumeRun(ctx, "", cp, payload)
}

// ResumeRun is Resume within the run runID. An empty runID uses the run on
// ctx or generates one.
func (r *Runner) ResumeRun(ctx context.Context, runID string, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = tracing.GetRunID(ctx)
	}

	start := time.Now()
	spec := r.registry.Find(cp.Tool)
	if spec == nil {
		result, err := r.resumeRemote(ctx, cp, payload)
		r.observe(cp.Tool, result, err, time.Since(start))
		return result, err
	}

	ec := r.NewContext(cp.Tool, runID)
	ctx = tracing.NewRunContext(ctx, cp.Tool, ec.RunID)
	ctx, span := tracing.StartToolSpan(ctx, tracerName, "tool.resume", cp.Tool, ec.RunID)
	ec.logger = tracing.LoggerFromContext(ctx, r.logger)
	result, err := r.resume(ctx, spec, ec, cp, payload)
	tracing.EndSpan(span, err)

	r.observe(cp.Tool, result, err, time.Since(start))
	return result, err
}

func (r *Runner) resume(ctx context.Context, spec *ToolSpec, ec *ExecutionContext, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	r.metrics.PlanResumed(spec.Name)

	compiled, err := r.registry.compiledParameters(ctx, spec, ec)
	if err != nil {
		return nil, &ExecutionError{Tool: spec.Name, Step: -1, Err: err}
	}
	input, err := validate(spec.Name, compiled, cp.ResumeInput(payload))
	if err != nil {
		return nil, err
	}
	ec.setInput(input)
	ec.restore(cp.Ctx)

	steps, err := r.resolveSteps(ctx, spec, ec, input)
	if err != nil {
		return nil, err
	}

	next := cp.Next()
	ec.logger.Info().
		Ints("path", cp.Path).
		Int("next", next).
		Int("steps", len(steps)).
		Msg("Resuming plan")

	if cp.Child == nil {
		if next >= len(steps) {
			return input, nil
		}
		result, err := r.runSteps(ctx, spec, ec, compiled, steps, next, nil)
		if err != nil {
			return nil, err
		}
		return r.afterRun(ctx, spec, ec, input, result)
	}

	if next >= len(steps) {
		return nil, fmt.Errorf("%w: %s has %d steps, checkpoint re-enters step %d", ErrInvalidCheckpoint, spec.Name, len(steps), next)
	}
	step := steps[next]
	if step.Tool != cp.Child.Tool {
		return nil, fmt.Errorf("%w: %s step %d delegates to %q, checkpoint expects %q", ErrInvalidCheckpoint, spec.Name, next, step.Tool, cp.Child.Tool)
	}

	override := &stepOverride{
		index: next,
		run: func(ctx context.Context) (any, error) {
			return r.resumeChild(ctx, ec, cp.Child, payload)
		},
	}
	result, err := r.runSteps(ctx, spec, ec, compiled, steps, next, override)
	if err != nil {
		return nil, err
	}
	return r.afterRun(ctx, spec, ec, input, result)
}

func (r *Runner) resumeChild(ctx context.Context, parent *ExecutionContext, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	spec := r.registry.Find(cp.Tool)
	if spec == nil {
		return r.resumeRemote(ctx, cp, payload)
	}
	return r.resume(ctx, spec, parent.child(cp.Tool), cp, payload)
}

func (r *Runner) resumeRemote(ctx context.Context, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	resumer, ok := r.remote.(RemoteResumer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, cp.Tool)
	}
	result, err := resumer.ResumeTool(ctx, cp, payload)
	if err != nil {
		return nil, err
	}
	if sig, ok := planner.AsPause(result); ok {
		return sig, nil
	}
	return result, nil
}

// planArguments backs ExecutionContext.Plan
func (r *Runner) planArguments(ctx context.Context, ec *ExecutionContext, tool string, partial map[string]any) (map[string]any, error) {
	if r.oracle == "" {
		return nil, ErrNoOracle
	}
	spec := r.registry.Find(tool)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}
	compiled, err := r.registry.compiledParameters(ctx, spec, ec.child(tool))
	if err != nil {
		return nil, err
	}

	if partial == nil {
		partial = map[string]any{}
	}
	proposal, err := ec.Call(ctx, r.oracle, map[string]any{
		"tool":        SanitizeWireName(spec.Name),
		"description": spec.Description,
		"parameters":  map[string]any(compiled.Schema()),
		"partial":     partial,
	})
	if err != nil {
		return nil, err
	}

	var suggested map[string]any
	if m, ok := proposal.(map[string]any); ok {
		suggested, _ = m["args"].(map[string]any)
	}

	merged := planner.MergeInput(suggested, partial)
	out, err := validate(spec.Name, compiled, merged)
	if err != nil {
		return nil, err
	}

	ec.logger.Debug().Str("target", tool).Int("fields", len(out)).Msg("Arguments planned")
	return out, nil
}
