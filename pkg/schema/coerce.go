package schema

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// coerceProperty converts string-encoded values towards the property's
// declared types. Values that cannot be converted are returned unchanged so
// the structural pass reports the mismatch.
func coerceProperty(prop Schema, v any) any {
	types := prop.Types()
	if len(types) == 0 {
		return v
	}

	if s, ok := v.(string); ok {
		v = coerceString(types, s)
	}

	if arr, ok := v.([]any); ok && contains(types, "array") {
		if items, ok := asSchema(prop["items"]); ok {
			itemTypes := items.Types()
			out := make([]any, len(arr))
			for i, el := range arr {
				if s, ok := el.(string); ok && len(itemTypes) > 0 {
					out[i] = coerceString(itemTypes, s)
				} else {
					out[i] = el
				}
			}
			v = out
		}
	}
	return v
}

// coerceString applies the first conversion that succeeds for the allowed
// types. A string allowed as-is is never converted.
func coerceString(types []string, s string) any {
	if contains(types, "string") {
		return s
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	for _, t := range types {
		switch t {
		case "number", "integer":
			if n, ok := parseNumber(trimmed); ok {
				if t == "integer" && n != math.Trunc(n) {
					continue
				}
				return n
			}
		case "boolean":
			switch strings.ToLower(trimmed) {
			case "true":
				return true
			case "false":
				return false
			}
		case "object", "array":
			if parsed, ok := parseJSONBlob(trimmed); ok {
				if _, isObj := parsed.(map[string]any); isObj && t == "object" {
					return parsed
				}
				if _, isArr := parsed.([]any); isArr && t == "array" {
					return parsed
				}
			}
		case "null":
			if trimmed == "null" {
				return nil
			}
		}
	}
	return s
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// parseJSONBlob decodes s when it looks like a JSON object or array.
func parseJSONBlob(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, false
	}
	return out, true
}

// FromQuery turns query-string values into an argument object ready for
// Validate. Repeated keys become arrays; a single value for an array-typed
// property that is not a JSON blob is wrapped into a one-element array.
func FromQuery(s Schema, values url.Values) map[string]any {
	props := s.Properties()
	out := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		prop := props[key]
		wantsArray := prop != nil && contains(prop.Types(), "array") && !contains(prop.Types(), "string")
		switch {
		case len(vals) > 1:
			arr := make([]any, len(vals))
			for i, v := range vals {
				arr[i] = v
			}
			out[key] = arr
		case wantsArray && !strings.HasPrefix(strings.TrimSpace(vals[0]), "["):
			out[key] = []any{vals[0]}
		default:
			out[key] = vals[0]
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}
