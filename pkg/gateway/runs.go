package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/harun/toolrun/internal/tracing"
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/planner"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

// runContext carries the run a background execution belongs to
type runContext struct {
	ctx context.Context
	id  string
}

type runFunc func(run *runContext) (any, error)

// startRun records a new run, answers 202 with its ID and executes exec in
// the background
func (s *Server) startRun(w http.ResponseWriter, r *http.Request, tool string, optimistic any, exec runFunc) {
	runID := toolexecutor.NewRunID()
	if _, err := s.runs.Create(runID, tool); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.runs.Start(runID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RunStarted()

	s.logger.Debug().Str("run_id", runID).Str("tool", tool).Msg("Run accepted")
	writeJSON(w, http.StatusAccepted, AsyncResponse{RunID: runID, Optimistic: optimistic})
	s.background(runID, tool, exec)
}

// continueRun is startRun for a run that already exists and is running
func (s *Server) continueRun(w http.ResponseWriter, runID, tool string, exec runFunc) {
	writeJSON(w, http.StatusAccepted, AsyncResponse{RunID: runID})
	s.background(runID, tool, exec)
}

func (s *Server) background(runID, tool string, exec runFunc) {
	s.runsWG.Add(1)
	go func() {
		defer s.runsWG.Done()
		_, _ = s.execute(s.baseCtx, runID, tool, exec)
	}()
}

// execute runs exec within runID and settles the outcome on the run store
// and the bus
func (s *Server) execute(ctx context.Context, runID, tool string, exec runFunc) (any, error) {
	defer s.metrics.RunEnded()

	ctx = tracing.WithRunID(ctx, runID)
	result, err := exec(&runContext{ctx: ctx, id: runID})
	s.settle(runID, tool, result, err)
	return result, err
}

func (s *Server) settle(runID, tool string, result any, err error) {
	logger := s.logger.With().Str("run_id", runID).Str("tool", tool).Logger()

	if err != nil {
		if serr := s.runs.Fail(runID, err); serr != nil {
			logger.Warn().Err(serr).Msg("Failed to record run error")
		}
		s.bus.Publish(eventbus.KindRunError, runID, tool, eventbus.RunError{RunID: runID, Error: err.Error()})
		logger.Debug().Err(err).Msg("Run errored")
		return
	}

	var serr error
	if sig, ok := planner.AsPause(result); ok {
		serr = s.runs.Pause(runID, sig, sig.Checkpoint)
	} else {
		serr = s.runs.Finish(runID, result)
	}
	if serr != nil {
		logger.Warn().Err(serr).Msg("Failed to record run result")
	}

	s.bus.Publish(eventbus.KindRunFinished, runID, tool, s.finishedPayload(runID, result))
	logger.Debug().Msg("Run finished")
}

// finishedPayload inlines the result unless it encodes larger than the
// configured limit, in which case clients fetch it from the run store
func (s *Server) finishedPayload(runID string, result any) eventbus.RunFinished {
	payload := eventbus.RunFinished{RunID: runID, Result: result}
	raw, err := json.Marshal(result)
	if err != nil || len(raw) > s.maxResultBytes {
		omitted := false
		payload.Result = nil
		payload.HasResult = &omitted
	}
	return payload
}
