package toolexecutor

import (
	"context"

	"github.com/harun/toolrun/pkg/schema"
)

// Handler is tool code. args has been validated and coerced against the
// tool's parameter schema.
type Handler func(ctx context.Context, ec *ExecutionContext, args map[string]any) (any, error)

// StepsFunc computes a step list from the execution context
type StepsFunc func(ctx context.Context, ec *ExecutionContext) ([]Step, error)

// PlanFunc computes a step list from the validated arguments. It is called
// again with the merged input when a paused plan resumes, so it must depend
// on nothing but ec and args.
type PlanFunc func(ctx context.Context, ec *ExecutionContext, args map[string]any) ([]Step, error)

// ParametersFunc computes a parameter schema at call time
type ParametersFunc func(ctx context.Context, ec *ExecutionContext) (schema.Schema, error)

// BeforeRunFunc returns a hint merged over the arguments before execution
type BeforeRunFunc func(ctx context.Context, ec *ExecutionContext, args map[string]any) (map[string]any, error)

// AfterRunFunc is the terminal executor of a tool without a strategy, or
// post-processes the result of one that has a strategy or runs on the server.
// result is nil when it acts as the executor.
type AfterRunFunc func(ctx context.Context, ec *ExecutionContext, args map[string]any, result any) (any, error)

// Step is one entry of a multi-step tool. Exactly one of Run or Tool is set:
// Run executes inline, Tool delegates to another registered tool.
type Step struct {
	Name string
	Run  Handler
	Tool string
	// Args for a delegation; nil passes the current input through.
	Args map[string]any
}

// Inline returns a step that runs fn
func Inline(name string, fn Handler) Step {
	return Step{Name: name, Run: fn}
}

// Delegate returns a step that calls tool with args
func Delegate(tool string, args map[string]any) Step {
	return Step{Name: tool, Tool: tool, Args: args}
}

// StrategyKind tags a Strategy
type StrategyKind int

const (
	StrategyNone StrategyKind = iota
	StrategyHandler
	StrategySteps
	StrategyPlan
)

// String returns the strategy name
func (k StrategyKind) String() string {
	switch k {
	case StrategyHandler:
		return "handler"
	case StrategySteps:
		return "steps"
	case StrategyPlan:
		return "plan"
	}
	return "none"
}

// Strategy is how a tool executes. Build one with HandlerStrategy,
// StepsStrategy, ResolvedSteps or PlanStrategy.
type Strategy struct {
	kind    StrategyKind
	handler Handler
	steps   []Step
	resolve StepsFunc
	plan    PlanFunc
}

// HandlerStrategy runs h as a single step
func HandlerStrategy(h Handler) Strategy {
	return Strategy{kind: StrategyHandler, handler: h}
}

// StepsStrategy runs a fixed ordered step list
func StepsStrategy(steps ...Step) Strategy {
	return Strategy{kind: StrategySteps, steps: steps}
}

// ResolvedSteps runs the step list fn computes at call time
func ResolvedSteps(fn StepsFunc) Strategy {
	return Strategy{kind: StrategySteps, resolve: fn}
}

// PlanStrategy runs the step list fn produces from the arguments
func PlanStrategy(fn PlanFunc) Strategy {
	return Strategy{kind: StrategyPlan, plan: fn}
}

// Kind returns the strategy tag
func (s Strategy) Kind() StrategyKind {
	return s.kind
}

func (s Strategy) valid() bool {
	switch s.kind {
	case StrategyHandler:
		return s.handler != nil
	case StrategySteps:
		return s.resolve != nil || len(s.steps) > 0
	case StrategyPlan:
		return s.plan != nil
	}
	return false
}

// ToolSpec describes a tool. It must not be modified after Define.
type ToolSpec struct {
	Name        string
	Description string

	// Parameters is the static schema. ResolveParameters, when set, wins.
	Parameters        schema.Schema
	ResolveParameters ParametersFunc

	Strategy  Strategy
	BeforeRun BeforeRunFunc
	AfterRun  AfterRunFunc

	// RunServer forces execution through the remote caller when the runner
	// has one. A runner without a remote caller is the server and runs the
	// tool locally.
	RunServer bool

	// Safe tools are also exposed as GET with query-string arguments.
	Safe bool

	// Async makes the gateway answer 202 and report completion on the push
	// channel. Optimistic computes the provisional result sent with the 202.
	Async      bool
	Optimistic func(args map[string]any) any

	Tags []string
}

// ReadOnly reports whether the tool may be served on a GET route: it must be
// safe and execute through a single handler or an AfterRun stub.
func (s *ToolSpec) ReadOnly() bool {
	if !s.Safe || s.RunServer {
		return false
	}
	switch s.Strategy.Kind() {
	case StrategyHandler:
		return true
	case StrategyNone:
		return s.AfterRun != nil
	}
	return false
}
