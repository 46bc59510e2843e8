// Package planner executes ordered tool steps and implements the
// checkpoint/resume protocol for plans that pause for external input.
//
// A paused plan is data, not a suspended goroutine: the Checkpoint records
// where execution stopped and the accumulated input, and resumption
// regenerates the step list from that input. Plan generators must therefore
// be pure with respect to their input; a generator that reads the clock or a
// random source can produce a different step list after a pause.
package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewPlan creates a plan for tool with the given steps
func NewPlan(tool string, steps []Step) (*Plan, error) {
	if tool == "" {
		return nil, fmt.Errorf("plan tool cannot be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("plan must have at least one step")
	}

	seen := make(map[string]bool, len(steps))
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
		if seen[steps[i].ID] {
			return nil, fmt.Errorf("duplicate step ID: %s", steps[i].ID)
		}
		seen[steps[i].ID] = true
		if steps[i].Status == "" {
			steps[i].Status = StepStatusPending
		}
	}

	return &Plan{
		ID:        uuid.New().String(),
		Tool:      tool,
		Steps:     steps,
		CreatedAt: time.Now(),
	}, nil
}
