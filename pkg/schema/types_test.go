package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes_Validate(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		value   any
		wantErr bool
	}{
		{"string", String(), "hello", false},
		{"empty string", String(), "", false},
		{"string from number", String(), 42.0, true},
		{"string from nil", String(), nil, true},
		{"float", Float(), 0.95, false},
		{"float from int", Float(), 1, false},
		{"float from string", Float(), "0.9", true},
		{"float from bool", Float(), true, true},
		{"slice of strings", Slice(String()), []string{"a", "b"}, false},
		{"decoded json array", Slice(String()), []any{"a", "b"}, false},
		{"empty slice", Slice(String()), []any{}, false},
		{"slice with bad element", Slice(String()), []any{"a", 1}, true},
		{"comma separated string", Slice(String()), "a,b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTypes_ErrorNamesElement(t *testing.T) {
	err := Slice(String()).Validate([]any{"ok", "ok", 3})
	assert.EqualError(t, err, "element 2: expected string, got int")
}

func TestTypes_JSONSchema(t *testing.T) {
	assert.Equal(t, map[string]any{"type": "string"}, String().JSONSchema())
	assert.Equal(t, map[string]any{"type": "number"}, Float().JSONSchema())
	assert.Equal(t, map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}, Slice(String()).JSONSchema())
	assert.Equal(t, "[string]", Slice(String()).Name())
}
