// Package client talks to a gateway over HTTP. Client is also the runner's
// remote caller, so tools missing locally resolve on the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/gateway"
	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/runstore"
	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8787"
	DefaultTimeout = 30 * time.Second
)

// Options configures a Client
type Options struct {
	BaseURL string
	Prefix  string
	// HTTPClient is used for request/response calls. Streams use a copy
	// without a timeout.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls tools on a gateway
type Client struct {
	base   string
	http   *http.Client
	stream *http.Client
	logger zerolog.Logger
}

// New creates a new Client
func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = gateway.DefaultPrefix
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	stream := *httpClient
	stream.Timeout = 0

	base = strings.TrimRight(base, "/")
	if p := strings.Trim(prefix, "/"); p != "" {
		base += "/" + p
	}
	return &Client{
		base:   base,
		http:   httpClient,
		stream: &stream,
		logger: opts.Logger,
	}
}

// Invocation is the immediate answer to a call: either a finished Result or,
// when the server runs the call in the background, a RunID with an optional
// optimistic result.
type Invocation struct {
	RunID      string
	Optimistic any
	Result     any
}

// Async reports whether the result will arrive later
func (i *Invocation) Async() bool {
	return i.RunID != ""
}

// InvokeOptions selects how the server runs a call
type InvokeOptions struct {
	// Async asks for a background run. Sync forces an inline run even for
	// tools the server would run in the background. Neither leaves the
	// choice to the server.
	Async bool
	Sync  bool
}

func (o InvokeOptions) query() string {
	switch {
	case o.Sync:
		return "?async=false"
	case o.Async:
		return "?async=true"
	}
	return ""
}

// CallTool invokes name and waits for its result inline
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	inv, err := c.Invoke(ctx, name, args, InvokeOptions{Sync: true})
	if err != nil {
		return nil, err
	}
	return inv.Result, nil
}

// Invoke calls name. The server may answer with a finished result or a run ID.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any, opts InvokeOptions) (*Invocation, error) {
	if args == nil {
		args = map[string]any{}
	}
	path := "/" + toolexecutor.SanitizeWireName(name) + opts.query()
	return c.invocation(ctx, name, path, args, errorMapping{tool: name})
}

// ResumeTool continues a paused plan on the server
func (c *Client) ResumeTool(ctx context.Context, cp *planner.Checkpoint, payload map[string]any) (any, error) {
	inv, err := c.Resume(ctx, gateway.ResumeRequest{Checkpoint: cp, Payload: payload}, InvokeOptions{Sync: true})
	if err != nil {
		return nil, err
	}
	return inv.Result, nil
}

// Resume posts a resume request. A RunID in req continues that tracked run.
func (c *Client) Resume(ctx context.Context, req gateway.ResumeRequest, opts InvokeOptions) (*Invocation, error) {
	tool := ""
	if req.Checkpoint != nil {
		tool = req.Checkpoint.Tool
	}
	return c.invocation(ctx, tool, "/resume"+opts.query(), req, errorMapping{tool: tool, resume: true})
}

func (c *Client) invocation(ctx context.Context, tool, path string, body any, mapping errorMapping) (*Invocation, error) {
	resp, err := c.do(ctx, c.http, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, &toolexecutor.TransportError{Tool: tool, URL: c.base + path, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result any
		if err := decodeBody(resp, &result); err != nil {
			return nil, &toolexecutor.TransportError{Tool: tool, URL: c.base + path, Err: err}
		}
		if sig, ok := planner.AsPause(result); ok {
			return &Invocation{Result: sig}, nil
		}
		return &Invocation{Result: result}, nil
	case http.StatusAccepted:
		var ack gateway.AsyncResponse
		if err := decodeBody(resp, &ack); err != nil {
			return nil, &toolexecutor.TransportError{Tool: tool, URL: c.base + path, Err: err}
		}
		c.logger.Debug().Str("tool", tool).Str("run_id", ack.RunID).Msg("Run accepted")
		return &Invocation{RunID: ack.RunID, Optimistic: ack.Optimistic}, nil
	default:
		return nil, mapping.apply(resp)
	}
}

// FetchRun returns the server's record of a run
func (c *Client) FetchRun(ctx context.Context, runID string) (runstore.Run, error) {
	var run runstore.Run
	err := c.getJSON(ctx, "/runs/"+url.PathEscape(runID), &run)
	return run, err
}

// Signal delivers a resume payload to a run blocked in AwaitResume
func (c *Client) Signal(ctx context.Context, runID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	path := "/runs/" + url.PathEscape(runID) + "/signal"
	resp, err := c.do(ctx, c.http, http.MethodPost, path, payload, nil)
	if err != nil {
		return &toolexecutor.TransportError{URL: c.base + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return errorMapping{}.apply(resp)
	}
	return nil
}

// Tools lists the wire names the server exposes
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	var dir gateway.Directory
	if err := c.getJSON(ctx, "", &dir); err != nil {
		return nil, err
	}
	return dir.Tools, nil
}

// Manifest fetches the function-calling manifest
func (c *Client) Manifest(ctx context.Context) ([]toolexecutor.FunctionTool, error) {
	var body struct {
		Tools []toolexecutor.FunctionTool `json:"tools"`
	}
	if err := c.getJSON(ctx, "/tools", &body); err != nil {
		return nil, err
	}
	return body.Tools, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, c.http, http.MethodGet, path, nil, nil)
	if err != nil {
		return &toolexecutor.TransportError{URL: c.base + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorMapping{}.apply(resp)
	}
	if err := decodeBody(resp, out); err != nil {
		return &toolexecutor.TransportError{URL: c.base + path, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any, header http.Header) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return hc.Do(req)
}

func decodeBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMapping turns a gateway error response back into the runner's error
// taxonomy
type errorMapping struct {
	tool   string
	resume bool
}

func (m errorMapping) apply(resp *http.Response) error {
	var body gateway.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = resp.Status
		}
	}
	msg := body.Error

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(body.Fields) > 0 {
			return &schema.ValidationError{Tool: m.tool, Errors: body.Fields}
		}
		if m.resume {
			return fmt.Errorf("%w: %s", toolexecutor.ErrInvalidCheckpoint, msg)
		}
		return &schema.ValidationError{Tool: m.tool, Errors: []schema.FieldError{{Field: "(root)", Reason: msg}}}
	case http.StatusNotFound:
		if strings.Contains(msg, runstore.ErrRunNotFound.Error()) {
			return fmt.Errorf("%w: %s", runstore.ErrRunNotFound, msg)
		}
		return fmt.Errorf("%w: %s", toolexecutor.ErrToolNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", runstore.ErrInvalidTransition, msg)
	default:
		if m.tool == "" {
			return fmt.Errorf("server returned %s: %s", resp.Status, msg)
		}
		// The server already formatted an ExecutionError; keep only its cause.
		if strings.HasPrefix(msg, "tool "+m.tool+" ") {
			if _, cause, ok := strings.Cut(msg, "failed: "); ok {
				msg = cause
			}
		}
		return &toolexecutor.ExecutionError{Tool: m.tool, Step: -1, Err: errors.New(msg)}
	}
}
