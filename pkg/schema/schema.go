// Package schema validates tool arguments against shallow JSON-schema
// documents.
//
// Validation happens in two passes. The first pass applies defaults and
// coerces string-encoded values (numbers, booleans, JSON blobs) towards the
// declared property types. The second pass hands the coerced object to
// gojsonschema for the structural checks (type, required, enum, items).
//
// Validate is deterministic and never mutates its input.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a JSON-schema document in its decoded map form.
type Schema map[string]any

// Empty returns the schema used when a tool declares no parameters.
func Empty() Schema {
	return Schema{"type": "object", "properties": map[string]any{}}
}

// Types returns the allowed type names declared by the schema. A single
// string and a union list are both accepted.
func (s Schema) Types() []string {
	return typeNames(s["type"])
}

// Properties returns the property schemas keyed by name.
func (s Schema) Properties() map[string]Schema {
	raw, ok := s["properties"]
	if !ok {
		return nil
	}
	out := make(map[string]Schema)
	switch props := raw.(type) {
	case map[string]any:
		for name, v := range props {
			if ps, ok := asSchema(v); ok {
				out[name] = ps
			}
		}
	case map[string]Schema:
		for name, ps := range props {
			out[name] = ps
		}
	}
	return out
}

// Required returns the declared required property names.
func (s Schema) Required() []string {
	switch req := s["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// IsObject reports whether the schema describes an object. Schemas without a
// type but with properties count as objects.
func (s Schema) IsObject() bool {
	if s == nil {
		return false
	}
	types := s.Types()
	if len(types) == 0 {
		_, hasProps := s["properties"]
		return hasProps
	}
	return contains(types, "object")
}

// Compiled is a schema prepared for repeated validation.
type Compiled struct {
	raw    Schema
	object bool
	js     *gojsonschema.Schema
}

// Compile prepares a schema. Non-object schemas compile to a pass-through.
func Compile(s Schema) (*Compiled, error) {
	c := &Compiled{raw: s, object: s.IsObject()}
	if !c.object {
		return c, nil
	}
	js, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any(s)))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	c.js = js
	return c, nil
}

// Schema returns the source document.
func (c *Compiled) Schema() Schema {
	return c.raw
}

// Validate coerces and checks input. On success it returns the coerced value;
// on failure the error is a *ValidationError.
func (c *Compiled) Validate(input any) (any, error) {
	if !c.object {
		return input, nil
	}

	obj, err := toObject(input)
	if err != nil {
		return nil, err
	}

	props := c.raw.Properties()
	for name, prop := range props {
		v, present := obj[name]
		if !present {
			if def, ok := prop["default"]; ok {
				obj[name] = cloneValue(def)
			}
			continue
		}
		obj[name] = coerceProperty(prop, v)
	}

	result, err := c.js.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return nil, &ValidationError{Errors: []FieldError{{Field: "(root)", Reason: err.Error()}}}
	}
	if !result.Valid() {
		return nil, newValidationError(result.Errors())
	}
	return obj, nil
}

// Validate compiles s and validates input against it.
func Validate(s Schema, input any) (any, error) {
	c, err := Compile(s)
	if err != nil {
		return nil, err
	}
	return c.Validate(input)
}

func toObject(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case string:
		if parsed, ok := parseJSONBlob(v); ok {
			if m, ok := parsed.(map[string]any); ok {
				return m, nil
			}
		}
	}
	return nil, &ValidationError{Errors: []FieldError{{Field: "(root)", Reason: fmt.Sprintf("expected object, got %s", jsonTypeOf(input))}}}
}

func asSchema(v any) (Schema, bool) {
	switch s := v.(type) {
	case Schema:
		return s, true
	case map[string]any:
		return Schema(s), true
	}
	return nil, false
}

func typeNames(raw any) []string {
	switch t := raw.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
