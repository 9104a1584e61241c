package schema

import (
	"fmt"
	"reflect"
)

// Type validates one argument value and describes it as JSON Schema.
type Type interface {
	Name() string
	Validate(value any) error
	JSONSchema() map[string]any
}

// scalar is a JSON primitive accepted by a predicate on the decoded Go value.
type scalar struct {
	name     string
	jsonType string
	accepts  func(any) bool
}

func (s scalar) Name() string { return s.name }

func (s scalar) JSONSchema() map[string]any { return map[string]any{"type": s.jsonType} }

func (s scalar) Validate(value any) error {
	if !s.accepts(value) {
		return fmt.Errorf("expected %s, got %T", s.name, value)
	}
	return nil
}

var (
	stringType = scalar{name: "string", jsonType: "string", accepts: func(v any) bool {
		_, ok := v.(string)
		return ok
	}}
	// Oracles send numbers through JSON, so integers count as floats too.
	floatType = scalar{name: "float", jsonType: "number", accepts: func(v any) bool {
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	}}
)

// String accepts Go strings.
func String() Type { return stringType }

// Float accepts any decoded JSON number.
func Float() Type { return floatType }

type slice struct {
	elem Type
}

// Slice accepts slices or arrays whose every element matches elem.
func Slice(elem Type) Type { return slice{elem: elem} }

func (s slice) Name() string { return "[" + s.elem.Name() + "]" }

func (s slice) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": s.elem.JSONSchema()}
}

func (s slice) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if k := rv.Kind(); k != reflect.Slice && k != reflect.Array {
		return fmt.Errorf("expected %s, got %T", s.Name(), value)
	}
	for i := range rv.Len() {
		if err := s.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}
