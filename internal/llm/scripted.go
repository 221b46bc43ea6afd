package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays a fixed sequence of turns. Each turn is either a
// response or an error; tests use it to drive the reasoning loop without a
// live provider.
type ScriptedClient struct {
	mu    sync.Mutex
	model string
	turns []ScriptedTurn
	next  int

	// Requests records every request received, for assertions.
	Requests []CompletionRequest
}

// ScriptedTurn is one scripted exchange.
type ScriptedTurn struct {
	Response *CompletionResponse
	Err      error
}

// NewScriptedClient builds a client that replays turns in order.
func NewScriptedClient(model string, turns ...ScriptedTurn) *ScriptedClient {
	return &ScriptedClient{model: model, turns: turns}
}

// FinalTurn scripts a final-answer response.
func FinalTurn(content string) ScriptedTurn {
	return ScriptedTurn{Response: &CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
}

// CallTurn scripts a capability-request response.
func CallTurn(calls ...CapabilityCall) ScriptedTurn {
	return ScriptedTurn{Response: &CompletionResponse{
		CapabilityCalls: calls,
		StopReason:      "capability_request",
		Usage:           TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
}

// ErrorTurn scripts a transport failure.
func ErrorTurn(err error) ScriptedTurn {
	return ScriptedTurn{Err: err}
}

func (c *ScriptedClient) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if c.next >= len(c.turns) {
		return nil, fmt.Errorf("scripted client exhausted after %d turn(s)", len(c.turns))
	}
	turn := c.turns[c.next]
	c.next++
	if turn.Err != nil {
		return nil, turn.Err
	}
	resp := *turn.Response
	return &resp, nil
}

func (c *ScriptedClient) Model() string { return c.model }

// Calls returns how many requests the client has served.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
