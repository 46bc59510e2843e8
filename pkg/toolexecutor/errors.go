package toolexecutor

import (
	"errors"
	"fmt"

	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/schema"
)

var (
	// ErrToolNotFound is returned when a name is neither registered nor remotely reachable
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool is returned when a name is registered twice
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrWireCollision is returned when two names sanitize to the same wire name
	ErrWireCollision = errors.New("wire name collision")
	// ErrNoStrategy is returned when a spec has nothing to execute
	ErrNoStrategy = errors.New("tool has no execution strategy")
	// ErrNoExecutableHandler is returned for a resolved step with neither code nor delegation
	ErrNoExecutableHandler = errors.New("no executable handler for tool step")
	// ErrResumeTimeout is returned by AwaitResume when no signal arrives in time
	ErrResumeTimeout = errors.New("timed out waiting for resume signal")
	// ErrNoOracle is returned by Plan when no oracle tool is configured
	ErrNoOracle = errors.New("no planner oracle configured")
	// ErrInvalidCheckpoint is returned for checkpoints that cannot be resumed
	ErrInvalidCheckpoint = planner.ErrInvalidCheckpoint
)

// ExecutionError wraps a failure raised by tool code. Step is the failing
// step index, or -1 when the failure is not tied to one step.
type ExecutionError struct {
	Tool string
	Step int
	Err  error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %s step %d failed: %v", e.Tool, e.Step, e.Err)
}

// Unwrap returns the underlying error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure to reach a remote tool
type TransportError struct {
	Tool string
	URL  string
	Err  error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("remote call %s (%s): %v", e.Tool, e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsExecutionError reports whether err wraps an *ExecutionError
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsTransportError reports whether err wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// typed reports whether err already carries a classification that callers
// map to a status and should therefore not be wrapped again.
func typed(err error) bool {
	return schema.IsValidationError(err) ||
		IsExecutionError(err) ||
		IsTransportError(err) ||
		errors.Is(err, ErrToolNotFound) ||
		errors.Is(err, ErrNoExecutableHandler) ||
		errors.Is(err, ErrInvalidCheckpoint)
}

func wrapStepError(tool string, step int, err error) error {
	if typed(err) {
		return err
	}
	return &ExecutionError{Tool: tool, Step: step, Err: err}
}
