package planner

import "time"

// Plan is the ordered step list resolved for one tool invocation
type Plan struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Step represents a single step in a plan
type Step struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Delegate string      `json:"delegate,omitempty"` // tool name when the step delegates
	Status   StepStatus  `json:"status"`
	Result   *StepResult `json:"result,omitempty"`
}

// StepStatus represents the execution status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusPaused    StepStatus = "paused"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult represents the result of executing a step
type StepResult struct {
	Success   bool          `json:"success"`
	Paused    bool          `json:"paused,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}
