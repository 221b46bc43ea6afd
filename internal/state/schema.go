package state

import (
	"fmt"
	"math"

	loomerrors "loom/internal/errors"
)

// FieldType enumerates the value types a state field may declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldList   FieldType = "list"
	FieldMap    FieldType = "map"
	FieldAny    FieldType = "any"
)

// Field declares one named slot in a workflow's state schema.
type Field struct {
	Type     FieldType
	Required bool
	Default  any
}

// Schema fixes the set of state fields, their types, and their defaults at
// workflow-definition time. Merges may only ever set declared fields.
type Schema map[string]Field

// Validate checks the schema itself: known field types and defaults that
// match their declared type.
func (s Schema) Validate() error {
	for name, field := range s {
		switch field.Type {
		case FieldString, FieldInt, FieldFloat, FieldBool, FieldList, FieldMap, FieldAny:
		case "":
			return &loomerrors.ValidationError{Field: name, Message: "field type is required"}
		default:
			return &loomerrors.ValidationError{Field: name, Message: fmt.Sprintf("unknown field type %q", field.Type)}
		}
		if field.Default != nil {
			if _, err := coerce(name, field.Type, field.Default); err != nil {
				return err
			}
		}
	}
	return nil
}

// coerce checks value against the declared type and normalizes numeric
// representations (JSON decodes integers as float64, YAML as int).
func coerce(name string, t FieldType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	mismatch := func() (any, error) {
		return nil, &loomerrors.ValidationError{
			Field:   name,
			Message: fmt.Sprintf("expected %s, got %T", t, value),
		}
	}

	switch t {
	case FieldAny:
		return value, nil
	case FieldString:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return mismatch()
	case FieldBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return mismatch()
	case FieldInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		}
		return mismatch()
	case FieldFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return mismatch()
	case FieldList:
		switch v := value.(type) {
		case []any:
			return v, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		}
		return mismatch()
	case FieldMap:
		if v, ok := value.(map[string]any); ok {
			return v, nil
		}
		return mismatch()
	default:
		return mismatch()
	}
}
