// Package eventbus is the in-process push channel between tool runs and
// their observers: UI hints, run completions and resume signals.
//
// Delivery is fan-out with no replay. Every subscriber interested in a kind
// receives every event of that kind; a subscriber whose buffer is full misses
// the event.
package eventbus

// Kind names an event on the bus
type Kind string

const (
	KindHello       Kind = "hello"
	KindRunFinished Kind = "run:finished"
	KindRunError    Kind = "run:error"
	KindUIOpen      Kind = "ui:open"
	KindUIUpdate    Kind = "ui:update"
	KindUILoading   Kind = "ui:loading"
	KindUIClose     Kind = "ui:close"
	KindRunResume   Kind = "run:resume"
)

// IsUI reports whether k is one of the ui:* hint kinds
func (k Kind) IsUI() bool {
	switch k {
	case KindUIOpen, KindUIUpdate, KindUILoading, KindUIClose:
		return true
	}
	return false
}

// IsTerminal reports whether k ends a run
func (k Kind) IsTerminal() bool {
	return k == KindRunFinished || k == KindRunError
}

// Event is one bus message. Data holds the payload type for Kind.
type Event struct {
	Kind      Kind   `json:"event"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Hello is the liveness payload
type Hello struct {
	Time int64 `json:"time"`
}

// RunFinished is the payload of run:finished. HasResult is set to false when
// the result was too large to inline and must be fetched separately.
type RunFinished struct {
	RunID     string `json:"runId"`
	Result    any    `json:"result,omitempty"`
	HasResult *bool  `json:"hasResult,omitempty"`
}

// ResultOmitted reports whether the result must be fetched separately
func (r RunFinished) ResultOmitted() bool {
	return r.HasResult != nil && !*r.HasResult
}

// RunError is the payload of run:error
type RunError struct {
	RunID string `json:"runId"`
	Error string `json:"error"`
}

// UIHint is the payload of the ui:* kinds
type UIHint struct {
	RunID   string `json:"runId"`
	Tool    string `json:"tool"`
	Payload any    `json:"payload,omitempty"`
}

// RunResume is the payload of run:resume
type RunResume struct {
	RunID   string         `json:"runId"`
	Payload map[string]any `json:"payload,omitempty"`
}
