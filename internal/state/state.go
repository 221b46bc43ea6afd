// Package state implements the typed state container that flows through a
// workflow. A container is constructed once from the caller's initial payload
// and thereafter produced as immutable snapshots: each completed task derives
// a new snapshot by overlaying its output mapping, and merges can only set
// fields the schema declares.
package state

import (
	"fmt"
	"sort"

	loomerrors "loom/internal/errors"
)

// State is one immutable snapshot of workflow state. Merging produces a new
// snapshot with a strictly larger version; existing snapshots never change.
type State struct {
	schema  Schema
	values  map[string]any
	version int
}

// New validates the initial payload against the schema and builds version 0
// of the state. Unknown keys and missing required fields are rejected before
// any task executes.
func New(schema Schema, payload map[string]any) (*State, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(schema))
	for name, field := range schema {
		if field.Default != nil {
			coerced, err := coerce(name, field.Type, field.Default)
			if err != nil {
				return nil, err
			}
			values[name] = coerced
		}
	}

	for key, value := range payload {
		field, ok := schema[key]
		if !ok {
			return nil, &loomerrors.ValidationError{Field: key, Message: "unknown field in initial payload"}
		}
		coerced, err := coerce(key, field.Type, value)
		if err != nil {
			return nil, err
		}
		values[key] = coerced
	}

	for name, field := range schema {
		if field.Required {
			if _, ok := values[name]; !ok {
				return nil, &loomerrors.ValidationError{Field: name, Message: "required field missing from initial payload"}
			}
		}
	}

	return &State{schema: schema, values: values, version: 0}, nil
}

// Restore rebuilds a snapshot from checkpointed values. The values are
// revalidated so a corrupt checkpoint cannot reintroduce type violations.
func Restore(schema Schema, values map[string]any, version int) (*State, error) {
	st, err := New(schema, values)
	if err != nil {
		return nil, err
	}
	st.version = version
	return st, nil
}

// Merge overlays a task result onto the snapshot per its output mapping
// (state field -> result key) and returns the successor snapshot.
//
// A mapping key absent from the result is a MappingError: it fails only the
// producing attempt, so the caller may retry the task against this same
// snapshot. A type mismatch is a ValidationError and is fatal — it is caught
// here, at the point the corruption would enter the state, not at read time.
func (s *State) Merge(task string, mapping map[string]string, result map[string]any) (*State, error) {
	next := make(map[string]any, len(s.values)+len(mapping))
	for k, v := range s.values {
		next[k] = v
	}

	// Deterministic application order for stable error reporting.
	fields := make([]string, 0, len(mapping))
	for field := range mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		resultKey := mapping[field]
		spec, ok := s.schema[field]
		if !ok {
			return nil, &loomerrors.ValidationError{Field: field, Message: fmt.Sprintf("task %q output mapping targets undeclared field", task)}
		}
		value, ok := result[resultKey]
		if !ok {
			return nil, &loomerrors.MappingError{Task: task, ResultKey: resultKey}
		}
		coerced, err := coerce(field, spec.Type, value)
		if err != nil {
			return nil, err
		}
		next[field] = coerced
	}

	return &State{schema: s.schema, values: next, version: s.version + 1}, nil
}

// Get returns the value of a declared field and whether it has been set.
func (s *State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// GetString returns the field rendered as a string, or "" when unset.
func (s *State) GetString(name string) string {
	v, ok := s.values[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Len returns the length of a list or string field, or -1 when the field is
// unset or not measurable. Routers use this for threshold checks.
func (s *State) Len(name string) int {
	v, ok := s.values[name]
	if !ok {
		return -1
	}
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return -1
	}
}

// Values returns a copy of the snapshot's field values.
func (s *State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Schema returns the schema the snapshot was built against.
func (s *State) Schema() Schema { return s.schema }

// Version is the number of merges applied since the initial payload.
func (s *State) Version() int { return s.version }
