package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	specs := s.registry.List()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, toolexecutor.SanitizeWireName(spec.Name))
	}
	writeJSON(w, http.StatusOK, Directory{Tools: names})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.registry.Manifest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": manifest})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *toolexecutor.ToolSpec {
	wire := chi.URLParam(r, "wire")
	spec := s.registry.FindByWire(wire)
	if spec == nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", toolexecutor.ErrToolNotFound, wire))
	}
	return spec
}

// handleInvoke serves POST <prefix>/<wire> with a JSON object body
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	spec := s.lookup(w, r)
	if spec == nil {
		return
	}
	args, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.dispatch(w, r, spec, args)
}

// handleQuery serves GET <prefix>/<wire> for read-only tools. Query values
// are coerced by the validator the same way body values are.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	spec := s.lookup(w, r)
	if spec == nil {
		return
	}
	if !spec.ReadOnly() {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error: fmt.Sprintf("tool %s does not accept GET", spec.Name),
		})
		return
	}

	ec := s.runner.NewContext(spec.Name, "")
	params, err := s.registry.ResolveParameters(r.Context(), spec, ec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values := r.URL.Query()
	values.Del("async")
	s.dispatch(w, r, spec, schema.FromQuery(params, values))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, spec *toolexecutor.ToolSpec, args map[string]any) {
	if s.wantsAsync(r, spec) {
		// Bad arguments are rejected here rather than as a run error.
		if _, err := s.runner.Validate(r.Context(), spec.Name, args); err != nil {
			s.writeError(w, r, err)
			return
		}
		var optimistic any
		if spec.Optimistic != nil {
			optimistic = spec.Optimistic(args)
		}
		name := spec.Name
		s.startRun(w, r, name, optimistic, func(run *runContext) (any, error) {
			return s.runner.Call(run.ctx, name, args, nil)
		})
		return
	}

	result, err := s.runner.Call(r.Context(), spec.Name, args, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// wantsAsync reports whether a call should run in the background. An
// explicit ?async= value wins over the Prefer header, the tool and the default.
func (s *Server) wantsAsync(r *http.Request, spec *toolexecutor.ToolSpec) bool {
	if v := r.URL.Query().Get("async"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Prefer")), "respond-async") {
		return true
	}
	if spec != nil && spec.Async {
		return true
	}
	return s.asyncByDefault
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(chi.URLParam(r, "runId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleSignal delivers a resume payload to whatever is awaiting the run
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	payload, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bus.Publish(eventbus.KindRunResume, runID, "", eventbus.RunResume{RunID: runID, Payload: payload})
	s.logger.Debug().Str("run_id", runID).Msg("Resume signal delivered")
	writeJSON(w, http.StatusAccepted, SignalResponse{Delivered: true})
}

// handleResume continues a paused plan from a checkpoint. A runId naming a
// paused run moves that run back to running and records the outcome on it.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, schema.NewValidationError("(root)", "body is not a valid resume request"))
		return
	}
	if err := req.Checkpoint.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	cp, payload := req.Checkpoint, req.Payload
	exec := func(run *runContext) (any, error) {
		return s.runner.ResumeRun(run.ctx, run.id, cp, payload)
	}

	async := s.wantsAsync(r, s.registry.Find(cp.Tool))
	if async || req.RunID != "" {
		if _, err := s.runner.Validate(r.Context(), cp.Tool, cp.ResumeInput(payload)); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if req.RunID != "" {
		run, err := s.runs.Get(req.RunID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if run.Tool != cp.Tool {
			s.writeError(w, r, fmt.Errorf("%w: run %s is %s, checkpoint is %s", ErrRunToolMismatch, req.RunID, run.Tool, cp.Tool))
			return
		}
		if err := s.runs.Resume(req.RunID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.metrics.RunStarted()
		if async {
			s.continueRun(w, req.RunID, cp.Tool, exec)
			return
		}
		result, err := s.execute(r.Context(), req.RunID, cp.Tool, exec)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if async {
		s.startRun(w, r, cp.Tool, nil, exec)
		return
	}
	result, err := s.runner.Resume(r.Context(), cp, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
