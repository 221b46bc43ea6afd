package graph

import (
	loomerrors "loom/internal/errors"
	"loom/internal/state"
)

// CompiledGraph is a validated, immutable workflow ready for execution. It is
// safe for concurrent use across runs.
type CompiledGraph struct {
	name         string
	schema       state.Schema
	nodes        map[string]*Node
	order        []string
	edges        map[string]string
	conditionals map[string]*ConditionalEdge
	entry        string
}

// Compile validates the workflow's structure and freezes it. Every defect is
// reported as a CompileError naming the offending node or edge:
//
//   - an entry point is set and names a registered node
//   - every edge endpoint is a registered node or the End sentinel
//   - every node has an outgoing static or conditional edge
//   - every node is reachable from the entry point
//   - every node can reach the End sentinel
func (w *Workflow) Compile() (*CompiledGraph, error) {
	if len(w.nodes) == 0 {
		return nil, &loomerrors.CompileError{Message: "workflow has no nodes"}
	}
	if w.entry == "" {
		return nil, &loomerrors.CompileError{Message: "no entry point set"}
	}
	if _, ok := w.nodes[w.entry]; !ok {
		return nil, &loomerrors.CompileError{Node: w.entry, Message: "entry point is not a registered node"}
	}

	if err := w.checkEdgeEndpoints(); err != nil {
		return nil, err
	}
	if err := w.checkOutgoing(); err != nil {
		return nil, err
	}
	if err := w.checkForwardReachability(); err != nil {
		return nil, err
	}
	if err := w.checkTerminalReachability(); err != nil {
		return nil, err
	}

	if err := w.schema.Validate(); err != nil {
		return nil, &loomerrors.CompileError{Message: "invalid state schema: " + err.Error()}
	}

	// Freeze by copying: later builder mutations must not leak into a graph
	// that already passed validation.
	nodes := make(map[string]*Node, len(w.nodes))
	for name, node := range w.nodes {
		copied := *node
		copied.Inputs = copyStringMap(node.Inputs)
		copied.Outputs = copyStringMap(node.Outputs)
		nodes[name] = &copied
	}
	edges := copyStringMap(w.edges)
	conditionals := make(map[string]*ConditionalEdge, len(w.conditionals))
	for source, cond := range w.conditionals {
		copied := *cond
		copied.Paths = copyStringMap(cond.Paths)
		conditionals[source] = &copied
	}

	return &CompiledGraph{
		name:         w.name,
		schema:       w.schema,
		nodes:        nodes,
		order:        append([]string(nil), w.order...),
		edges:        edges,
		conditionals: conditionals,
		entry:        w.entry,
	}, nil
}

func copyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (w *Workflow) checkEdgeEndpoints() error {
	exists := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := w.nodes[name]
		return ok
	}
	for source, target := range w.edges {
		if _, ok := w.nodes[source]; !ok {
			return &loomerrors.CompileError{Edge: source + " -> " + target, Message: "edge source is not a registered node"}
		}
		if !exists(target) {
			return &loomerrors.CompileError{Edge: source + " -> " + target, Message: "edge target is not a registered node"}
		}
	}
	for source, cond := range w.conditionals {
		if _, ok := w.nodes[source]; !ok {
			return &loomerrors.CompileError{Node: source, Message: "conditional edge source is not a registered node"}
		}
		for verdict, target := range cond.Paths {
			if !exists(target) {
				return &loomerrors.CompileError{
					Edge:    source + " -[" + verdict + "]-> " + target,
					Message: "conditional path target is not a registered node",
				}
			}
		}
	}
	return nil
}

func (w *Workflow) checkOutgoing() error {
	for _, name := range w.order {
		_, hasStatic := w.edges[name]
		_, hasConditional := w.conditionals[name]
		if !hasStatic && !hasConditional {
			return &loomerrors.CompileError{Node: name, Message: "node has no outgoing edge"}
		}
	}
	return nil
}

// successors returns every node (or End) directly reachable from name.
func (w *Workflow) successors(name string) []string {
	var out []string
	if target, ok := w.edges[name]; ok {
		out = append(out, target)
	}
	if cond, ok := w.conditionals[name]; ok {
		for _, target := range cond.Paths {
			out = append(out, target)
		}
	}
	return out
}

func (w *Workflow) checkForwardReachability() error {
	seen := map[string]bool{w.entry: true}
	queue := []string{w.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range w.successors(current) {
			if next == End || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	for _, name := range w.order {
		if !seen[name] {
			return &loomerrors.CompileError{Node: name, Message: "node is unreachable from the entry point"}
		}
	}
	return nil
}

func (w *Workflow) checkTerminalReachability() error {
	// Reverse BFS from End over the inverted edge set.
	incoming := make(map[string][]string, len(w.nodes))
	for _, name := range w.order {
		for _, next := range w.successors(name) {
			incoming[next] = append(incoming[next], name)
		}
	}
	seen := map[string]bool{}
	queue := append([]string(nil), incoming[End]...)
	for _, name := range queue {
		seen[name] = true
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, prev := range incoming[current] {
			if seen[prev] {
				continue
			}
			seen[prev] = true
			queue = append(queue, prev)
		}
	}
	for _, name := range w.order {
		if !seen[name] {
			return &loomerrors.CompileError{Node: name, Message: "node cannot reach the terminal sentinel"}
		}
	}
	return nil
}

// Name returns the workflow identifier.
func (g *CompiledGraph) Name() string { return g.name }

// Schema returns the workflow's state schema.
func (g *CompiledGraph) Schema() state.Schema { return g.schema }

// Entry returns the entry node's name.
func (g *CompiledGraph) Entry() string { return g.entry }

// Node returns the named node, or nil when absent.
func (g *CompiledGraph) Node(name string) *Node { return g.nodes[name] }

// Nodes returns node names in registration order.
func (g *CompiledGraph) Nodes() []string { return append([]string(nil), g.order...) }

// StaticEdge returns the unconditional successor of name, if one exists.
func (g *CompiledGraph) StaticEdge(name string) (string, bool) {
	target, ok := g.edges[name]
	return target, ok
}

// Conditional returns the conditional edge leaving name, if one exists.
func (g *CompiledGraph) Conditional(name string) (*ConditionalEdge, bool) {
	cond, ok := g.conditionals[name]
	return cond, ok
}
