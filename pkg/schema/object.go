package schema

import "encoding/json"

// Field describes one named argument.
type Field struct {
	Name        string
	Type        Type
	Required    bool
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// Object is an ordered set of fields. The zero value accepts any input.
type Object struct {
	Fields []Field
}

// Lookup returns the field with the given name.
func (o Object) Lookup(name string) (Field, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the names of required fields in declaration order.
func (o Object) Required() []string {
	var names []string
	for _, f := range o.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks data against the object's fields.
// Missing or null required fields fail with Reason "required". Present fields
// must match their Type. Keys not declared by the object are ignored.
// All failures are collected into an *AggregateError.
func (o Object) Validate(data map[string]any) error {
	var errs []error

	for _, f := range o.Fields {
		value, exists := data[f.Name]
		if !exists || value == nil {
			if f.Required {
				errs = append(errs, &ValidationError{Key: f.Name, Reason: "required"})
			}
			continue
		}

		if f.Type == nil {
			continue
		}
		if err := f.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    f.Name,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// JSONSchema renders the object as a JSON Schema "object" definition.
func (o Object) JSONSchema() map[string]any {
	props := make(map[string]any, len(o.Fields))
	for _, f := range o.Fields {
		prop := map[string]any{}
		if f.Type != nil {
			for k, v := range f.Type.JSONSchema() {
				prop[k] = v
			}
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			prop["enum"] = append([]string(nil), f.Enum...)
		}
		if f.Minimum != nil {
			prop["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			prop["maximum"] = *f.Maximum
		}
		props[f.Name] = prop
	}

	required := o.Required()
	if required == nil {
		required = []string{}
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// MarshalJSON serializes the object as its JSON Schema form.
func (o Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.JSONSchema())
}

// Bound returns a pointer to v, for Field.Minimum and Field.Maximum.
func Bound(v float64) *float64 {
	return &v
}
