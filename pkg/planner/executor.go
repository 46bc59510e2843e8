package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StepFunc runs the step at index and returns its result. A step requests a
// pause by returning a *PauseSignal (see Pause); a delegated tool that paused
// returns its own signal with a filled checkpoint.
type StepFunc func(ctx context.Context, index int, step *Step) (any, error)

// SnapshotFunc captures the execution context at the moment of a pause.
type SnapshotFunc func() Snapshot

// StepError reports the step that failed and wraps its cause.
type StepError struct {
	Tool   string
	Index  int
	StepID string
	Err    error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("tool %s step %d (%s): %v", e.Tool, e.Index, e.StepID, e.Err)
}

// Unwrap returns the underlying step error
func (e *StepError) Unwrap() error {
	return e.Err
}

// Executor runs plan steps strictly in order. Steps are never retried and a
// failing step aborts the plan.
type Executor struct {
	logger zerolog.Logger
}

// NewExecutor creates a new plan executor
func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs plan from step start and returns the last step's result, or a
// *PauseSignal carrying a checkpoint if a step paused. Steps before start are
// marked skipped; they completed before the pause being resumed.
func (e *Executor) Execute(ctx context.Context, plan *Plan, start int, run StepFunc, snapshot SnapshotFunc) (any, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}
	if start < 0 || start > len(plan.Steps) {
		return nil, fmt.Errorf("%w: resume index %d out of range for %d steps", ErrInvalidCheckpoint, start, len(plan.Steps))
	}

	for i := 0; i < start; i++ {
		plan.Steps[i].Status = StepStatusSkipped
	}

	var last any
	for i := start; i < len(plan.Steps); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step := &plan.Steps[i]
		result, err := e.executeStep(ctx, plan, i, step, run)
		if err != nil {
			return nil, err
		}

		if sig, ok := AsPause(result); ok {
			step.Status = StepStatusPaused
			step.Result.Paused = true
			cp := e.checkpoint(plan.Tool, i, sig, snapshot)

			e.logger.Info().
				Str("tool", plan.Tool).
				Str("step", step.ID).
				Ints("path", cp.Path).
				Msg("Plan paused")

			return &PauseSignal{Paused: true, Preview: sig.Preview, Checkpoint: cp}, nil
		}

		last = result
	}

	return last, nil
}

func (e *Executor) executeStep(ctx context.Context, plan *Plan, index int, step *Step, run StepFunc) (any, error) {
	step.Status = StepStatusRunning
	startTime := time.Now()

	e.logger.Debug().
		Str("tool", plan.Tool).
		Str("step", step.ID).
		Str("delegate", step.Delegate).
		Msg("Executing step")

	result, err := run(ctx, index, step)
	duration := time.Since(startTime)

	if err != nil {
		step.Status = StepStatusFailed
		step.Result = &StepResult{
			Success:   false,
			Error:     err.Error(),
			Duration:  duration,
			Timestamp: time.Now(),
		}
		e.logger.Warn().
			Err(err).
			Str("tool", plan.Tool).
			Str("step", step.ID).
			Dur("duration", duration).
			Msg("Step failed")
		return nil, &StepError{Tool: plan.Tool, Index: index, StepID: step.ID, Err: err}
	}

	step.Status = StepStatusCompleted
	step.Result = &StepResult{
		Success:   true,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	return result, nil
}

// checkpoint builds the checkpoint for a pause at index. A signal that
// already carries a checkpoint came from a delegated plan and is nested.
func (e *Executor) checkpoint(tool string, index int, sig *PauseSignal, snapshot SnapshotFunc) *Checkpoint {
	var snap Snapshot
	if snapshot != nil {
		snap = snapshot()
	}
	if snap.Input == nil {
		snap.Input = map[string]any{}
	}

	if sig.Checkpoint != nil {
		return wrap(tool, index, snap, sig.Checkpoint)
	}
	return &Checkpoint{
		Tool:  tool,
		Index: index,
		Path:  []int{index},
		Ctx:   snap,
	}
}
