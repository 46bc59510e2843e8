package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/harun/toolrun/pkg/runstore"
	"github.com/harun/toolrun/pkg/schema"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps runner and run-store errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case schema.IsValidationError(err), errors.Is(err, toolexecutor.ErrInvalidCheckpoint):
		return http.StatusBadRequest
	case errors.Is(err, toolexecutor.ErrToolNotFound), errors.Is(err, runstore.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, runstore.ErrInvalidTransition), errors.Is(err, ErrRunToolMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := ErrorResponse{Error: err.Error()}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Errors
	}

	event := s.logger.Debug()
	if code >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("Request failed")

	writeJSON(w, code, body)
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, schema.NewValidationError("(root)", "body is not valid JSON")
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, schema.NewValidationError("(root)", "body must be a JSON object")
	}
}
