package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned when input does not satisfy a schema. It is
// never retried and maps to HTTP 400 at the wire layer.
type ValidationError struct {
	Tool   string       `json:"tool,omitempty"`
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Reason))
	}
	prefix := "validation failed"
	if e.Tool != "" {
		prefix = fmt.Sprintf("validation failed for %s", e.Tool)
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Reason: reason}}}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newValidationError(results []gojsonschema.ResultError) *ValidationError {
	out := &ValidationError{Errors: make([]FieldError, 0, len(results))}
	for _, re := range results {
		field := re.Field()
		reason := re.Description()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok && prop != "" {
				field = prop
			}
			reason = "missing required field"
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Reason: reason})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out
}
