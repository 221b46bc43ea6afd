// Package agent defines autonomous workers and the bounded reasoning loop
// that drives them. An agent owns a model handle, a system prompt, and a set
// of capability bindings; the loop alternates model calls and capability
// dispatches until the model produces a final answer or the iteration cap is
// reached.
package agent

import (
	"fmt"
	"sort"
	"sync"

	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/memory"
)

// DefaultMaxIterations bounds the reasoning loop when an agent does not set
// its own cap.
const DefaultMaxIterations = 10

// Agent is a reusable worker definition. The same agent may be bound to many
// workflow nodes; per-node instructions arrive at Run time.
type Agent struct {
	// Name identifies the agent in events and logs.
	Name string

	// SystemPrompt is the first message of every conversation.
	SystemPrompt string

	// Client is the model handle the loop calls.
	Client llm.Client

	// Capabilities lists the registry names this agent may invoke. Empty
	// means every registered capability is available.
	Capabilities []string

	// Memory, when set, is consulted before the loop starts and updated
	// after it finishes.
	Memory memory.Memory

	// MaxIterations caps reasoning steps per task. Zero uses
	// DefaultMaxIterations.
	MaxIterations int

	// Temperature and MaxTokens pass through to every model call.
	Temperature float64
	MaxTokens   int
}

// Validate reports whether the agent is runnable.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if a.Client == nil {
		return fmt.Errorf("agent %s has no model client", a.Name)
	}
	return nil
}

// allows reports whether the agent may invoke the named capability.
func (a *Agent) allows(name string) bool {
	if len(a.Capabilities) == 0 {
		return true
	}
	for _, bound := range a.Capabilities {
		if bound == name {
			return true
		}
	}
	return false
}

// Registry is a concurrency-safe agent lookup table keyed by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger logging.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logging.OrNop(logger),
	}
}

// Register adds an agent. Registering a duplicate name is an error.
func (r *Registry) Register(a *Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Name]; exists {
		return fmt.Errorf("agent already registered: %s", a.Name)
	}
	r.agents[a.Name] = a
	r.logger.Debug("Registered agent: %s", a.Name)
	return nil
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", name)
	}
	return a, nil
}

// Names returns registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
