// Package capability models the engine's callable contracts: named tools with
// declared parameter schemas, registered once before a run and invoked by the
// scheduler or by an agent's reasoning loop. Side effects belong to the
// callable; the engine only sees arguments in and a single result out.
package capability

import "context"

// Definition describes a capability to the engine and to language models.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema declares a capability's arguments (JSON Schema subset).
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property declares a single parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// Result is a capability's single return value. Content is the textual form
// handed to agents as an observation; Data carries structured keys that
// output mappings can resolve.
type Result struct {
	Content string         `json:"content"`
	Data    map[string]any `json:"data,omitempty"`
}

// Capability is a schema-described callable.
type Capability interface {
	// Definition returns the contract advertised to models and validated on invoke.
	Definition() Definition

	// Execute runs the capability. Arguments have already been validated
	// against the declared schema.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Func adapts a plain function into a Capability.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, args map[string]any) (*Result, error)
}

func (f *Func) Definition() Definition { return f.Def }

func (f *Func) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	return f.Fn(ctx, args)
}

// TextResult wraps plain text as a Result whose "output" key mirrors the
// content, so direct tool tasks can map it into state.
func TextResult(content string) *Result {
	return &Result{Content: content, Data: map[string]any{"output": content}}
}
