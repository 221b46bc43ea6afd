// Package engine walks a compiled task graph: it executes one node at a time,
// merges each result into the shared state, checkpoints progress, and follows
// static or routed edges until the terminal sentinel is reached.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"loom/internal/agent"
	"loom/internal/checkpoint"
	loomerrors "loom/internal/errors"
	"loom/internal/event"
	"loom/internal/graph"
	"loom/internal/logging"
	"loom/internal/state"
	"loom/internal/utils/id"
)

// Engine schedules workflow runs. It is safe for concurrent use; all run
// state lives on the stack of each Run call.
type Engine struct {
	capabilities agent.Invoker
	bus          *event.Bus
	checkpoints  checkpoint.Store
	logger       logging.Logger
	metrics      *Metrics
	clock        func() time.Time
	retry        loomerrors.RetryConfig
	runTimeout   time.Duration
	snapshots    chan<- Snapshot
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCheckpoints persists a record after every completed task.
func WithCheckpoints(store checkpoint.Store) Option {
	return func(e *Engine) { e.checkpoints = store }
}

// WithLogger sets the engine logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(logger) }
}

// WithMetrics records run and task counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRetryConfig sets the default per-task retry policy. Nodes may override
// it individually.
func WithRetryConfig(config loomerrors.RetryConfig) Option {
	return func(e *Engine) { e.retry = config }
}

// WithRunTimeout bounds total run duration. The deadline is checked at
// attempt boundaries, so a run never aborts mid-merge.
func WithRunTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.runTimeout = timeout }
}

// WithClock overrides time acquisition, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New creates an engine over a capability registry and an event bus. Either
// may be nil when the workflow does not need it.
func New(capabilities agent.Invoker, bus *event.Bus, opts ...Option) *Engine {
	e := &Engine{
		capabilities: capabilities,
		bus:          bus,
		logger:       logging.Nop(),
		clock:        time.Now,
		retry:        loomerrors.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the graph from its entry point over a fresh state built from
// payload. It returns the final state, or the error that stopped the run.
func (e *Engine) Run(ctx context.Context, g *graph.CompiledGraph, payload map[string]any) (*state.State, error) {
	return e.RunWithID(ctx, g, id.NewRunID(), payload)
}

// RunWithID is Run with a caller-chosen run identifier, so surfaces that hand
// the identifier to clients before the run finishes can do so.
func (e *Engine) RunWithID(ctx context.Context, g *graph.CompiledGraph, runID string, payload map[string]any) (*state.State, error) {
	st, err := state.New(g.Schema(), payload)
	if err != nil {
		return nil, err
	}
	return e.walk(ctx, g, runID, st, g.Entry())
}

// Resume restores the latest checkpoint of runID and continues from the node
// after the last completed one. The routing decision is re-derived from the
// restored state, never stored.
func (e *Engine) Resume(ctx context.Context, g *graph.CompiledGraph, runID string) (*state.State, error) {
	if e.checkpoints == nil {
		return nil, fmt.Errorf("resume requires a checkpoint store")
	}
	record, err := e.checkpoints.Latest(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for run %s: %w", runID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("no checkpoints recorded for run %s", runID)
	}

	st, err := state.Restore(g.Schema(), record.State, record.StateVersion)
	if err != nil {
		return nil, fmt.Errorf("restore state for run %s: %w", runID, err)
	}

	next, err := e.route(g, record.LastCompletedNode, st)
	if err != nil {
		return nil, err
	}
	if next == graph.End {
		e.logger.Info("Run %s already complete at checkpoint %s", runID, record.LastCompletedNode)
		return st, nil
	}
	e.logger.Info("Resuming run %s after node %s", runID, record.LastCompletedNode)
	return e.walk(ctx, g, runID, st, next)
}

// walk is the sequential scheduler core shared by Run and Resume.
func (e *Engine) walk(ctx context.Context, g *graph.CompiledGraph, runID string, st *state.State, current string) (*state.State, error) {
	started := e.clock()
	var deadline time.Time
	if e.runTimeout > 0 {
		deadline = started.Add(e.runTimeout)
	}

	e.publish(event.NewWorkflowStart(runID, g.Name(), sortedKeys(st.Values())))

	for current != graph.End {
		node := g.Node(current)
		if node == nil {
			// Compile guarantees edge targets exist; reaching this means the
			// graph was mutated after compilation.
			return nil, &loomerrors.RunError{RunID: runID, Node: current, Err: fmt.Errorf("node vanished from compiled graph")}
		}

		merged, seq, err := e.executeNode(ctx, g, runID, node, st, deadline)
		if err != nil {
			e.metrics.runCompleted(g.Name(), "error", e.clock().Sub(started).Seconds())
			e.logger.Error("Run %s failed at node %s: %v", runID, current, err)
			return nil, err
		}
		st = merged

		if e.checkpoints != nil {
			record := checkpoint.Record{
				RunID:             runID,
				Workflow:          g.Name(),
				LastCompletedNode: current,
				State:             st.Values(),
				StateVersion:      st.Version(),
				Seq:               seq,
				CreatedAt:         e.clock(),
			}
			if err := e.checkpoints.Save(ctx, record); err != nil {
				e.metrics.runCompleted(g.Name(), "error", e.clock().Sub(started).Seconds())
				return nil, &loomerrors.RunError{RunID: runID, Node: current, Err: fmt.Errorf("save checkpoint: %w", err)}
			}
		}

		if e.snapshots != nil {
			select {
			case e.snapshots <- Snapshot{RunID: runID, Task: current, StateVersion: st.Version(), Values: st.Values()}:
			case <-ctx.Done():
				e.metrics.runCompleted(g.Name(), "error", e.clock().Sub(started).Seconds())
				return nil, &loomerrors.RunError{RunID: runID, Node: current, Err: ctx.Err()}
			}
		}

		next, err := e.route(g, current, st)
		if err != nil {
			e.metrics.runCompleted(g.Name(), "error", e.clock().Sub(started).Seconds())
			e.logger.Error("Run %s failed routing from %s: %v", runID, current, err)
			return nil, err
		}
		current = next
	}

	e.publish(event.NewWorkflowFinish(runID, g.Name(), st.Version()))
	e.metrics.runCompleted(g.Name(), "ok", e.clock().Sub(started).Seconds())
	return st, nil
}

// executeNode runs one node through its retry budget and merges its result.
// It returns the post-merge state and the sequence number of the node's
// task_finish event.
func (e *Engine) executeNode(ctx context.Context, g *graph.CompiledGraph, runID string, node *graph.Node, st *state.State, deadline time.Time) (*state.State, uint64, error) {
	config := e.retry
	if node.Retry != nil {
		config = *node.Retry
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !deadline.IsZero() && e.clock().After(deadline) {
			if lastErr == nil {
				lastErr = context.DeadlineExceeded
			}
			lastErr = fmt.Errorf("run timeout exceeded: %w", lastErr)
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, &loomerrors.RunError{RunID: runID, Node: node.Name, Attempts: attempts, Err: ctx.Err()}
		default:
		}

		attempts = attempt
		e.publish(event.NewTaskStart(runID, node.Name, attempt))
		if attempt > 1 {
			e.metrics.taskRetried(g.Name(), node.Name)
		}

		result, err := e.attempt(ctx, runID, node, st)
		if err == nil {
			merged, mergeErr := st.Merge(node.Name, node.Outputs, result)
			if mergeErr == nil {
				finish := e.publish(event.NewTaskFinish(runID, node.Name, merged.Version(), sortedKeys(node.Outputs)))
				e.metrics.taskExecuted(g.Name(), node.Name)
				return merged, finish.Seq, nil
			}
			err = mergeErr
		}

		lastErr = err
		e.logger.Warn("Node %s attempt %d/%d failed: %v", node.Name, attempt, maxAttempts, err)
		if loomerrors.IsFatal(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(loomerrors.Backoff(attempt, config)):
		case <-ctx.Done():
			return nil, 0, &loomerrors.RunError{RunID: runID, Node: node.Name, Attempts: attempts, Err: ctx.Err()}
		}
	}

	e.metrics.taskFailed(g.Name(), node.Name)
	return nil, 0, &loomerrors.RunError{RunID: runID, Node: node.Name, Attempts: attempts, Err: lastErr}
}

// attempt performs one execution of a node: a direct capability invocation
// with rendered inputs, or a full reasoning loop for an agent binding.
func (e *Engine) attempt(ctx context.Context, runID string, node *graph.Node, st *state.State) (map[string]any, error) {
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	if node.Capability != "" {
		if e.capabilities == nil {
			return nil, fmt.Errorf("node %s needs a capability registry", node.Name)
		}
		args := state.RenderInputs(node.Inputs, st)
		result, err := e.capabilities.Invoke(ctx, node.Capability, args)
		if err != nil {
			return nil, err
		}
		if result.Data != nil {
			return result.Data, nil
		}
		return map[string]any{"output": result.Content}, nil
	}

	instructions := state.Render(node.Instructions, st)
	loop := agent.NewLoop(node.Agent, e.capabilities, e.bus, e.logger)
	result, err := loop.Run(ctx, runID, node.Name, instructions)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"output":     result.Content,
		"truncated":  result.Truncated,
		"iterations": result.Iterations,
	}, nil
}

// route resolves the successor of current over the post-merge state.
func (e *Engine) route(g *graph.CompiledGraph, current string, st *state.State) (string, error) {
	if target, ok := g.StaticEdge(current); ok {
		return target, nil
	}
	cond, ok := g.Conditional(current)
	if !ok {
		return "", &loomerrors.CompileError{Node: current, Message: "node has no outgoing edge"}
	}
	verdict := cond.Router(st)
	target, mapped := cond.Paths[verdict]
	if !mapped {
		return "", &loomerrors.RoutingError{Node: current, Value: verdict}
	}
	return target, nil
}

func (e *Engine) publish(ev event.Event) event.Event {
	if e.bus == nil {
		return ev
	}
	return e.bus.Publish(ev)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
