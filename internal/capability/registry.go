package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	loomerrors "loom/internal/errors"
	"loom/internal/logging"
)

// Registry maps capability names to callables. Lookup is read-shared across
// concurrent invocations; registration is expected to happen before a run
// starts.
type Registry struct {
	mu     sync.RWMutex
	caps   map[string]Capability
	logger logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		caps:   make(map[string]Capability),
		logger: logging.OrNop(logger),
	}
}

// Register adds a capability. Duplicate names and contract-less callables are
// rejected so a workflow cannot silently shadow a tool.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return fmt.Errorf("nil capability")
	}
	def := c.Definition()
	if def.Name == "" {
		return fmt.Errorf("capability name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[def.Name]; exists {
		return fmt.Errorf("capability already registered: %s", def.Name)
	}
	r.caps[def.Name] = c
	return nil
}

// Get retrieves a capability by name.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.caps[name]; ok {
		return c, nil
	}
	return nil, &loomerrors.InvocationError{Capability: name, Err: fmt.Errorf("not registered")}
}

// List returns every registered definition, sorted by name so the set bound
// into a model prompt is stable across runs.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.caps))
	for _, c := range r.caps {
		defs = append(defs, c.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Unregister removes a capability by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.caps[name]; !ok {
		return fmt.Errorf("capability not registered: %s", name)
	}
	delete(r.caps, name)
	return nil
}

// Invoke validates args against the declared schema and executes the
// capability. A schema violation returns an InvocationError with no side
// effect attempted; a callable failure is wrapped, never swallowed.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = make(map[string]any)
	}

	def := c.Definition()
	if err := validateArgs(def.Parameters, args); err != nil {
		return nil, &loomerrors.InvocationError{Capability: name, Err: err}
	}

	result, err := c.Execute(ctx, args)
	if err != nil {
		r.logger.Debug("Capability %q failed: %v", name, err)
		return nil, &loomerrors.InvocationError{Capability: name, Err: err}
	}
	if result == nil {
		return nil, &loomerrors.InvocationError{Capability: name, Err: fmt.Errorf("returned nil result")}
	}
	return result, nil
}

func validateArgs(schema ParameterSchema, args map[string]any) error {
	for name := range args {
		if _, ok := schema.Properties[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("missing required argument %q", required)
		}
	}
	for name, value := range args {
		prop := schema.Properties[name]
		if err := checkArgType(prop.Type, value); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
	}
	return nil
}

func checkArgType(declared string, value any) error {
	if value == nil {
		return nil
	}
	ok := true
	switch declared {
	case "", "any":
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "integer":
		switch value.(type) {
		case int, int32, int64:
		case float64:
			// JSON decoding produces float64 for every number.
		default:
			ok = false
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
	case "array":
		switch value.(type) {
		case []any, []string:
		default:
			ok = false
		}
	case "object":
		_, ok = value.(map[string]any)
	default:
		return fmt.Errorf("unknown declared type %q", declared)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %T", declared, value)
	}
	return nil
}
