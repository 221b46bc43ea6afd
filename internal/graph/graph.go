// Package graph defines workflows as directed task graphs: named nodes bound
// to a capability or an agent, plus static and conditional edges describing
// control flow. A workflow is built incrementally, then compiled into an
// immutable, validated form the scheduler can execute.
package graph

import (
	"time"

	"loom/internal/agent"
	loomerrors "loom/internal/errors"
	"loom/internal/state"
)

// End is the terminal sentinel. Edges pointing at End finish the run.
const End = "__end__"

// Router inspects the post-merge state and returns a routing value to be
// looked up in the conditional edge's path table.
type Router func(*state.State) string

// Node is one unit of work. Exactly one of Agent or Capability must be set.
type Node struct {
	// Name identifies the node; it must be unique within the workflow and
	// may not be the End sentinel.
	Name string

	// Agent executes the node through a reasoning loop. Mutually exclusive
	// with Capability.
	Agent *agent.Agent

	// Capability is the registry name of a direct capability binding.
	// Mutually exclusive with Agent.
	Capability string

	// Instructions is the agent prompt template. Placeholders like {topic}
	// are substituted from state before the loop starts.
	Instructions string

	// Inputs maps capability argument names to templates rendered against
	// state. A template that is exactly one placeholder passes the state
	// value through with its type intact.
	Inputs map[string]string

	// Outputs maps state fields to result keys: after the node succeeds,
	// state[field] = result.Data[key].
	Outputs map[string]string

	// Retry overrides the scheduler's retry policy for this node.
	Retry *loomerrors.RetryConfig

	// Timeout bounds one attempt of this node. Zero means no limit.
	Timeout time.Duration
}

// ConditionalEdge routes from Source based on the router's verdict over the
// post-merge state. Every possible verdict must appear in Paths; an unmapped
// verdict fails the run.
type ConditionalEdge struct {
	Source string
	Router Router
	Paths  map[string]string
}

// Workflow is a mutable graph under construction. Builder methods return
// errors eagerly for malformed input; structural properties (reachability,
// connectivity) are checked by Compile.
type Workflow struct {
	name         string
	schema       state.Schema
	nodes        map[string]*Node
	order        []string
	edges        map[string]string
	conditionals map[string]*ConditionalEdge
	entry        string
}

// New creates an empty workflow over the given state schema. The schema is
// fixed for the workflow's lifetime.
func New(name string, schema state.Schema) *Workflow {
	return &Workflow{
		name:         name,
		schema:       schema,
		nodes:        make(map[string]*Node),
		edges:        make(map[string]string),
		conditionals: make(map[string]*ConditionalEdge),
	}
}

// Name returns the workflow identifier.
func (w *Workflow) Name() string { return w.name }

// Schema returns the workflow's state schema.
func (w *Workflow) Schema() state.Schema { return w.schema }

// AddNode registers a node. The node must carry exactly one binding, a
// unique name, and must not shadow the End sentinel.
func (w *Workflow) AddNode(node *Node) error {
	if node == nil {
		return &loomerrors.CompileError{Message: "nil node"}
	}
	if node.Name == "" {
		return &loomerrors.CompileError{Message: "node name is required"}
	}
	if node.Name == End {
		return &loomerrors.CompileError{Node: node.Name, Message: "node name collides with the terminal sentinel"}
	}
	if node.Agent != nil && node.Capability != "" {
		return &loomerrors.CompileError{Node: node.Name, Message: "node is bound to both an agent and a capability"}
	}
	if node.Agent == nil && node.Capability == "" {
		return &loomerrors.CompileError{Node: node.Name, Message: "node has no agent or capability binding"}
	}
	if _, exists := w.nodes[node.Name]; exists {
		return &loomerrors.CompileError{Node: node.Name, Message: "duplicate node name"}
	}
	w.nodes[node.Name] = node
	w.order = append(w.order, node.Name)
	return nil
}

// AddEdge declares an unconditional transition from source to target. Target
// may be End. At most one static edge may leave a node.
func (w *Workflow) AddEdge(source, target string) error {
	if source == End {
		return &loomerrors.CompileError{Edge: source + " -> " + target, Message: "edges cannot leave the terminal sentinel"}
	}
	if _, exists := w.edges[source]; exists {
		return &loomerrors.CompileError{Node: source, Message: "node already has an outgoing static edge"}
	}
	if _, exists := w.conditionals[source]; exists {
		return &loomerrors.CompileError{Node: source, Message: "node already has a conditional edge"}
	}
	w.edges[source] = target
	return nil
}

// AddConditionalEdges declares a routed transition from source. The router
// runs against the state produced by source; its verdict selects the target
// from paths.
func (w *Workflow) AddConditionalEdges(source string, router Router, paths map[string]string) error {
	if router == nil {
		return &loomerrors.CompileError{Node: source, Message: "conditional edge requires a router"}
	}
	if len(paths) == 0 {
		return &loomerrors.CompileError{Node: source, Message: "conditional edge requires at least one path"}
	}
	if _, exists := w.edges[source]; exists {
		return &loomerrors.CompileError{Node: source, Message: "node already has an outgoing static edge"}
	}
	if _, exists := w.conditionals[source]; exists {
		return &loomerrors.CompileError{Node: source, Message: "node already has a conditional edge"}
	}
	w.conditionals[source] = &ConditionalEdge{Source: source, Router: router, Paths: paths}
	return nil
}

// SetEntryPoint names the node where every run begins.
func (w *Workflow) SetEntryPoint(name string) error {
	if name == "" || name == End {
		return &loomerrors.CompileError{Node: name, Message: "invalid entry point"}
	}
	w.entry = name
	return nil
}
