package gateway

import (
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/schema"
)

// Directory is the body of GET <prefix>
type Directory struct {
	Tools []string `json:"tools"`
}

// AsyncResponse is returned with 202 when a call runs in the background
type AsyncResponse struct {
	RunID      string `json:"runId"`
	Optimistic any    `json:"optimistic,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// ResumeRequest is the body of POST <prefix>/resume
type ResumeRequest struct {
	Checkpoint *planner.Checkpoint `json:"checkpoint"`
	Payload    map[string]any      `json:"payload,omitempty"`
	RunID      string              `json:"runId,omitempty"`
}

// SignalResponse acknowledges POST <prefix>/runs/{runId}/signal
type SignalResponse struct {
	Delivered bool `json:"delivered"`
}

// EventMessage is one websocket push frame
type EventMessage struct {
	Type      string        `json:"type"`
	Event     eventbus.Kind `json:"event"`
	Seq       int64         `json:"seq,omitempty"`
	Timestamp int64         `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	Data      any           `json:"data,omitempty"`
}

func newEventMessage(ev eventbus.Event) EventMessage {
	return EventMessage{
		Type:      "event",
		Event:     ev.Kind,
		Seq:       ev.Seq,
		Timestamp: ev.Timestamp,
		RunID:     ev.RunID,
		Tool:      ev.Tool,
		Data:      ev.Data,
	}
}

// reservedWireNames collide with the gateway's own routes
var reservedWireNames = map[string]bool{
	"tools":  true,
	"runs":   true,
	"events": true,
	"ws":     true,
	"resume": true,
}

// pushKinds are forwarded to SSE and websocket subscribers. run:resume is
// internal to the server.
var pushKinds = []eventbus.Kind{
	eventbus.KindRunFinished,
	eventbus.KindRunError,
	eventbus.KindUIOpen,
	eventbus.KindUIUpdate,
	eventbus.KindUILoading,
	eventbus.KindUIClose,
}
