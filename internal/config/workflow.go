package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"loom/internal/agent"
	loomerrors "loom/internal/errors"
	"loom/internal/graph"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/memory"
	"loom/internal/state"
)

// WorkflowFile is the declarative YAML workflow format. Routers are expressed
// as field comparisons so a workflow file stays fully data-driven.
type WorkflowFile struct {
	Name   string               `yaml:"name"`
	State  map[string]FieldSpec `yaml:"state"`
	Entry  string               `yaml:"entry"`
	Agents []AgentSpec          `yaml:"agents"`
	Nodes  []NodeSpec           `yaml:"nodes"`
	Edges  []EdgeSpec           `yaml:"edges"`
}

// AgentSpec declares a reusable agent the workflow's nodes can reference by
// name. The model client is supplied at assembly time.
type AgentSpec struct {
	Name          string   `yaml:"name"`
	SystemPrompt  string   `yaml:"system_prompt"`
	Capabilities  []string `yaml:"capabilities"`
	MaxIterations int      `yaml:"max_iterations"`
	Temperature   float64  `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
}

// FieldSpec declares one state field.
type FieldSpec struct {
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
}

// NodeSpec declares one task node. Exactly one of Agent or Capability must be
// set, mirroring the builder's binding rule.
type NodeSpec struct {
	Name         string            `yaml:"name"`
	Agent        string            `yaml:"agent"`
	Capability   string            `yaml:"capability"`
	Instructions string            `yaml:"instructions"`
	Inputs       map[string]string `yaml:"inputs"`
	Outputs      map[string]string `yaml:"outputs"`
	Retry        *RetrySpec        `yaml:"retry"`
	Timeout      time.Duration     `yaml:"timeout"`
}

// RetrySpec overrides the default retry policy for one node.
type RetrySpec struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

// EdgeSpec declares one outgoing edge. Either To (static) or Condition
// (routed) must be set.
type EdgeSpec struct {
	From      string         `yaml:"from"`
	To        string         `yaml:"to"`
	Condition *ConditionSpec `yaml:"condition"`
}

// ConditionSpec is a two-way comparison router: when the comparison holds the
// run proceeds to Then, otherwise to Else.
type ConditionSpec struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
	Then  string `yaml:"then"`
	Else  string `yaml:"else"`
}

// LoadWorkflow parses a workflow file from disk.
func LoadWorkflow(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var wf WorkflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}
	if wf.Name == "" {
		return nil, &loomerrors.CompileError{Message: "workflow file has no name"}
	}
	return &wf, nil
}

// BuildAgents registers the file's declared agents, all sharing one model
// client, and returns the registry node bindings resolve against.
func (wf *WorkflowFile) BuildAgents(client llm.Client, recall func(name string) memory.Memory, logger logging.Logger) (*agent.Registry, error) {
	agents := agent.NewRegistry(logger)
	for _, spec := range wf.Agents {
		a := &agent.Agent{
			Name:          spec.Name,
			SystemPrompt:  spec.SystemPrompt,
			Client:        client,
			Capabilities:  spec.Capabilities,
			MaxIterations: spec.MaxIterations,
			Temperature:   spec.Temperature,
			MaxTokens:     spec.MaxTokens,
		}
		if recall != nil {
			a.Memory = recall(spec.Name)
		}
		if err := agents.Register(a); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

// Build assembles the declarative definition into a workflow. Agent-bound
// nodes are resolved against the registry by name.
func (wf *WorkflowFile) Build(agents *agent.Registry) (*graph.Workflow, error) {
	schema, err := wf.buildSchema()
	if err != nil {
		return nil, err
	}
	w := graph.New(wf.Name, schema)

	for _, spec := range wf.Nodes {
		node := &graph.Node{
			Name:         spec.Name,
			Capability:   spec.Capability,
			Instructions: spec.Instructions,
			Inputs:       spec.Inputs,
			Outputs:      spec.Outputs,
			Timeout:      spec.Timeout,
		}
		if spec.Agent != "" {
			if agents == nil {
				return nil, fmt.Errorf("node %s references agent %s but no agent registry was provided", spec.Name, spec.Agent)
			}
			a, err := agents.Get(spec.Agent)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Name, err)
			}
			node.Agent = a
		}
		if spec.Retry != nil {
			node.Retry = &loomerrors.RetryConfig{
				MaxAttempts:  spec.Retry.MaxAttempts,
				BaseDelay:    spec.Retry.BaseDelay,
				MaxDelay:     spec.Retry.MaxDelay,
				JitterFactor: spec.Retry.JitterFactor,
			}
		}
		if err := w.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, spec := range wf.Edges {
		switch {
		case spec.To != "" && spec.Condition != nil:
			return nil, &loomerrors.CompileError{Node: spec.From, Message: "edge declares both a static target and a condition"}
		case spec.To != "":
			if err := w.AddEdge(spec.From, spec.To); err != nil {
				return nil, err
			}
		case spec.Condition != nil:
			router, err := spec.Condition.router()
			if err != nil {
				return nil, &loomerrors.CompileError{Node: spec.From, Message: err.Error()}
			}
			paths := map[string]string{"then": spec.Condition.Then, "else": spec.Condition.Else}
			if err := w.AddConditionalEdges(spec.From, router, paths); err != nil {
				return nil, err
			}
		default:
			return nil, &loomerrors.CompileError{Node: spec.From, Message: "edge declares neither a target nor a condition"}
		}
	}

	if wf.Entry != "" {
		if err := w.SetEntryPoint(wf.Entry); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Compile is a convenience for Build followed by graph compilation.
func (wf *WorkflowFile) Compile(agents *agent.Registry) (*graph.CompiledGraph, error) {
	w, err := wf.Build(agents)
	if err != nil {
		return nil, err
	}
	return w.Compile()
}

func (wf *WorkflowFile) buildSchema() (state.Schema, error) {
	schema := make(state.Schema, len(wf.State))
	for name, spec := range wf.State {
		schema[name] = state.Field{
			Type:     state.FieldType(spec.Type),
			Required: spec.Required,
			Default:  spec.Default,
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// router builds the comparison function. Length operators measure strings,
// lists, and maps via the state container; value operators compare the raw
// field value.
func (c *ConditionSpec) router() (graph.Router, error) {
	if c.Field == "" {
		return nil, fmt.Errorf("condition requires a field")
	}
	if c.Then == "" || c.Else == "" {
		return nil, fmt.Errorf("condition requires both then and else targets")
	}

	var holds func(st *state.State) bool
	switch c.Op {
	case "eq":
		holds = func(st *state.State) bool { return st.GetString(c.Field) == fmt.Sprint(c.Value) }
	case "ne":
		holds = func(st *state.State) bool { return st.GetString(c.Field) != fmt.Sprint(c.Value) }
	case "gt", "gte", "lt", "lte":
		threshold, err := toFloat(c.Value)
		if err != nil {
			return nil, fmt.Errorf("condition op %s: %w", c.Op, err)
		}
		op := c.Op
		holds = func(st *state.State) bool {
			v, ok := st.Get(c.Field)
			if !ok {
				return false
			}
			f, err := toFloat(v)
			if err != nil {
				return false
			}
			return compare(f, threshold, op)
		}
	case "len_gt", "len_gte", "len_lt", "len_lte":
		threshold, err := toFloat(c.Value)
		if err != nil {
			return nil, fmt.Errorf("condition op %s: %w", c.Op, err)
		}
		op := c.Op[len("len_"):]
		holds = func(st *state.State) bool {
			n := st.Len(c.Field)
			if n < 0 {
				return false
			}
			return compare(float64(n), threshold, op)
		}
	case "empty":
		holds = func(st *state.State) bool { return st.Len(c.Field) <= 0 }
	case "not_empty":
		holds = func(st *state.State) bool { return st.Len(c.Field) > 0 }
	default:
		return nil, fmt.Errorf("unknown condition op %q", c.Op)
	}

	return func(st *state.State) string {
		if holds(st) {
			return "then"
		}
		return "else"
	}, nil
}

func compare(v, threshold float64, op string) bool {
	switch op {
	case "gt":
		return v > threshold
	case "gte":
		return v >= threshold
	case "lt":
		return v < threshold
	case "lte":
		return v <= threshold
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}
