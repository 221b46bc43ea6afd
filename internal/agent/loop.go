package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"loom/internal/capability"
	"loom/internal/event"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/utils/id"
)

// maxConcurrentDispatch bounds parallel capability execution within one
// reasoning step. All dispatches of a step join before the next model call.
const maxConcurrentDispatch = 4

// truncationNotice is returned as the answer when the iteration cap is hit
// before the model committed to any content.
const truncationNotice = "Reached the reasoning step limit before producing a final answer."

// Invoker is the capability surface the loop needs. Both *capability.Registry
// and *capability.CachedRegistry satisfy it.
type Invoker interface {
	Get(name string) (capability.Capability, error)
	Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error)
}

// Result is the outcome of one reasoning loop run. A truncated result is a
// valid answer, not a failure.
type Result struct {
	Content    string
	Truncated  bool
	Iterations int
	Usage      llm.TokenUsage
}

// Loop executes one agent against one instruction set, emitting lifecycle
// events as it goes.
type Loop struct {
	agent    *Agent
	registry Invoker
	bus      *event.Bus
	logger   logging.Logger
}

// NewLoop binds an agent to a capability registry and an event bus.
func NewLoop(a *Agent, registry Invoker, bus *event.Bus, logger logging.Logger) *Loop {
	return &Loop{
		agent:    a,
		registry: registry,
		bus:      bus,
		logger:   logging.OrNop(logger),
	}
}

// Run drives the reasoning loop: model call, capability dispatch, repeat.
// A nil error means the agent produced an answer, possibly truncated at the
// iteration cap. A non-nil error means the model transport failed; capability
// failures never surface here, they become observations the model sees.
func (l *Loop) Run(ctx context.Context, runID, task, instructions string) (*Result, error) {
	maxIterations := l.agent.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	definitions, err := l.definitions()
	if err != nil {
		return nil, err
	}

	messages := l.openingMessages(ctx, instructions)
	l.publish(event.NewAgentStart(runID, task, l.agent.Name))

	var usage llm.TokenUsage
	lastContent := ""

	for iteration := 1; iteration <= maxIterations; iteration++ {
		l.publish(event.NewAgentModelCallStart(runID, task, l.agent.Name, iteration, len(messages)))

		resp, err := l.agent.Client.Complete(ctx, llm.CompletionRequest{
			Messages:     messages,
			Capabilities: definitions,
			Temperature:  l.agent.Temperature,
			MaxTokens:    l.agent.MaxTokens,
		})
		if err != nil {
			l.publish(event.NewAgentEnd(runID, task, l.agent.Name, iteration, false))
			return nil, fmt.Errorf("model call (agent=%s iteration=%d): %w", l.agent.Name, iteration, err)
		}
		usage.Add(resp.Usage)
		l.publish(event.NewAgentModelCallEnd(runID, task, l.agent.Name, iteration, len(resp.Content), len(resp.CapabilityCalls)))

		if resp.IsFinal() {
			l.remember(ctx, instructions, resp.Content)
			l.publish(event.NewAgentEnd(runID, task, l.agent.Name, iteration, false))
			return &Result{Content: resp.Content, Iterations: iteration, Usage: usage}, nil
		}

		if resp.Content != "" {
			lastContent = resp.Content
		}
		messages = append(messages, llm.Message{
			Role:            llm.RoleAssistant,
			Content:         resp.Content,
			CapabilityCalls: resp.CapabilityCalls,
		})
		messages = append(messages, l.dispatch(ctx, runID, task, resp.CapabilityCalls)...)
	}

	content := lastContent
	if content == "" {
		content = truncationNotice
	}
	l.remember(ctx, instructions, content)
	l.publish(event.NewAgentEnd(runID, task, l.agent.Name, maxIterations, true))
	l.logger.Warn("Agent %s hit iteration cap (%d) on task %s", l.agent.Name, maxIterations, task)
	return &Result{Content: content, Truncated: true, Iterations: maxIterations, Usage: usage}, nil
}

// openingMessages assembles the system prompt, recalled memory, and the
// task instructions. Memory failures are logged and skipped.
func (l *Loop) openingMessages(ctx context.Context, instructions string) []llm.Message {
	var messages []llm.Message
	if l.agent.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: l.agent.SystemPrompt})
	}
	if l.agent.Memory != nil {
		recalled, err := l.agent.Memory.Recall(ctx, instructions)
		if err != nil {
			l.logger.Warn("Memory recall failed for agent %s: %v", l.agent.Name, err)
		} else {
			messages = append(messages, recalled...)
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: instructions})
}

// definitions returns the capability schemas visible to this agent.
func (l *Loop) definitions() ([]capability.Definition, error) {
	if len(l.agent.Capabilities) == 0 {
		return nil, nil
	}
	if l.registry == nil {
		return nil, fmt.Errorf("agent %s declares capabilities but no registry is available", l.agent.Name)
	}
	defs := make([]capability.Definition, 0, len(l.agent.Capabilities))
	for _, name := range l.agent.Capabilities {
		c, err := l.registry.Get(name)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", l.agent.Name, err)
		}
		defs = append(defs, c.Definition())
	}
	return defs, nil
}

// dispatch executes the requested capability calls concurrently and returns
// one observation message per call, in request order. Failures become error
// observations so the model can react to them.
func (l *Loop) dispatch(ctx context.Context, runID, task string, calls []llm.CapabilityCall) []llm.Message {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = id.NewCallID()
		}
	}

	type dispatchOutcome struct {
		result *capability.Result
		err    error
	}
	outcomes := make([]dispatchOutcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDispatch)

	for i, call := range calls {
		i, call := i, call
		args, argErr := llm.ResolveArguments(call)
		l.publish(event.NewAgentCapabilityCall(runID, task, l.agent.Name, call.Name, call.ID, args))

		if argErr != nil {
			outcomes[i] = dispatchOutcome{err: fmt.Errorf("malformed arguments: %w", argErr)}
			continue
		}
		if !l.agent.allows(call.Name) {
			outcomes[i] = dispatchOutcome{err: fmt.Errorf("capability not bound to agent %s: %s", l.agent.Name, call.Name)}
			continue
		}
		if l.registry == nil {
			outcomes[i] = dispatchOutcome{err: fmt.Errorf("no capability registry available for %s", call.Name)}
			continue
		}

		g.Go(func() error {
			result, err := l.registry.Invoke(gctx, call.Name, args)
			outcomes[i] = dispatchOutcome{result: result, err: err}
			return nil
		})
	}
	// Dispatch errors are carried in outcomes, never through the group.
	_ = g.Wait()

	observations := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		outcome := outcomes[i]
		if outcome.err != nil {
			l.publish(event.NewAgentCapabilityResult(runID, task, l.agent.Name, call.Name, call.ID, false, outcome.err.Error()))
			observations = append(observations, llm.Message{
				Role:    llm.RoleTool,
				Content: fmt.Sprintf("capability error: %v", outcome.err),
				CallID:  call.ID,
				Name:    call.Name,
			})
			continue
		}
		l.publish(event.NewAgentCapabilityResult(runID, task, l.agent.Name, call.Name, call.ID, true, preview(outcome.result.Content)))
		observations = append(observations, llm.Message{
			Role:    llm.RoleTool,
			Content: outcome.result.Content,
			CallID:  call.ID,
			Name:    call.Name,
		})
	}
	return observations
}

// remember stores the exchange when the agent carries a memory backend.
func (l *Loop) remember(ctx context.Context, instructions, answer string) {
	if l.agent.Memory == nil {
		return
	}
	err := l.agent.Memory.Store(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: instructions},
		{Role: llm.RoleAssistant, Content: answer},
	})
	if err != nil {
		l.logger.Warn("Memory store failed for agent %s: %v", l.agent.Name, err)
	}
}

func (l *Loop) publish(e event.Event) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(e)
}

// preview trims a capability result for event payloads.
func preview(content string) string {
	const limit = 200
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "..."
}
