package planner

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PausedKey marks a pause payload on the wire.
const PausedKey = "__PLAN_PAUSED__"

// ErrInvalidCheckpoint is returned for checkpoints that cannot be resumed.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// Snapshot is the resumable part of an execution context.
type Snapshot struct {
	Input map[string]any `json:"$input"`
	Vars  map[string]any `json:"vars,omitempty"`
}

// Checkpoint records where a plan paused.
//
// Index is the step that paused in the innermost plan; that step counts as
// completed, so a flat plan resumes at Index+1. Path lists the step indices
// from the outermost plan down to the pausing step. When a step delegated into
// another plan that paused, Child holds that plan's checkpoint and the outer
// plan re-enters the delegating step at Path[0].
type Checkpoint struct {
	Tool  string      `json:"tool"`
	Index int         `json:"index"`
	Path  []int       `json:"path"`
	Ctx   Snapshot    `json:"ctx"`
	Child *Checkpoint `json:"child,omitempty"`
}

// Validate checks the structural invariants of the checkpoint.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrInvalidCheckpoint)
	}
	if c.Tool == "" {
		return fmt.Errorf("%w: missing tool", ErrInvalidCheckpoint)
	}
	if len(c.Path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidCheckpoint)
	}
	for _, idx := range c.Path {
		if idx < 0 {
			return fmt.Errorf("%w: negative step index %d", ErrInvalidCheckpoint, idx)
		}
	}
	if c.Path[len(c.Path)-1] != c.Index {
		return fmt.Errorf("%w: index %d does not terminate path %v", ErrInvalidCheckpoint, c.Index, c.Path)
	}
	if c.Child == nil {
		if len(c.Path) != 1 {
			return fmt.Errorf("%w: nested path without child checkpoint", ErrInvalidCheckpoint)
		}
		return nil
	}
	if len(c.Child.Path) != len(c.Path)-1 {
		return fmt.Errorf("%w: child path does not match", ErrInvalidCheckpoint)
	}
	for i, idx := range c.Child.Path {
		if c.Path[i+1] != idx {
			return fmt.Errorf("%w: child path does not match", ErrInvalidCheckpoint)
		}
	}
	return c.Child.Validate()
}

// Next returns the outer step index execution re-enters at.
func (c *Checkpoint) Next() int {
	if c.Child != nil {
		return c.Path[0]
	}
	return c.Index + 1
}

// ResumeInput returns the accumulated input extended by payload.
func (c *Checkpoint) ResumeInput(payload map[string]any) map[string]any {
	return MergeInput(c.Ctx.Input, payload)
}

// wrap nests an inner checkpoint under the outer step at index.
func wrap(tool string, index int, snap Snapshot, inner *Checkpoint) *Checkpoint {
	path := make([]int, 0, len(inner.Path)+1)
	path = append(path, index)
	path = append(path, inner.Path...)
	return &Checkpoint{
		Tool:  tool,
		Index: inner.Index,
		Path:  path,
		Ctx:   snap,
		Child: inner,
	}
}

// MergeInput returns a new map holding base overridden by payload. Neither
// argument is modified.
func MergeInput(base, payload map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(payload))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// PauseSignal is the successful result of a plan that stopped for external
// input. It is a value, not an error.
type PauseSignal struct {
	Paused     bool        `json:"__PLAN_PAUSED__"`
	Preview    any         `json:"preview,omitempty"`
	Checkpoint *Checkpoint `json:"checkpoint"`
}

// Pause builds the signal a step returns to request external input. The
// executor fills in the checkpoint.
func Pause(preview any) *PauseSignal {
	return &PauseSignal{Paused: true, Preview: preview}
}

// AsPause recognises a pause signal in a step or tool result, including the
// decoded JSON form returned by a remote call.
func AsPause(v any) (*PauseSignal, bool) {
	switch p := v.(type) {
	case *PauseSignal:
		return p, p != nil && p.Paused
	case PauseSignal:
		return &p, p.Paused
	case map[string]any:
		if paused, _ := p[PausedKey].(bool); !paused {
			return nil, false
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, false
		}
		var sig PauseSignal
		if err := json.Unmarshal(raw, &sig); err != nil {
			return nil, false
		}
		return &sig, true
	}
	return nil, false
}
