// Package llm defines the model-handle boundary: the engine sends an ordered
// message history plus the bound capability schemas, and receives back either
// final content or one-or-more capability requests. Wire formats, auth, and
// model selection live behind Client implementations and never leak into the
// engine.
package llm

import (
	"context"

	"loom/internal/capability"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation handed to a model.
type Message struct {
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	CapabilityCalls []CapabilityCall `json:"capability_calls,omitempty"` // assistant request turns
	CallID          string           `json:"call_id,omitempty"`          // tool observation turns
	Name            string           `json:"name,omitempty"`             // capability name on observations
}

// CapabilityCall is one requested capability invocation. Providers deliver
// arguments as raw JSON text; ParseArguments repairs and decodes it.
type CapabilityCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// CompletionRequest contains everything a provider needs for one model turn.
type CompletionRequest struct {
	Messages     []Message               `json:"messages"`
	Capabilities []capability.Definition `json:"capabilities,omitempty"`
	Temperature  float64                 `json:"temperature,omitempty"`
	MaxTokens    int                     `json:"max_tokens,omitempty"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
}

// CompletionResponse is polymorphic over two variants: a final answer
// (Content, no calls) or a capability request (one or more calls).
type CompletionResponse struct {
	Content         string           `json:"content"`
	CapabilityCalls []CapabilityCall `json:"capability_calls,omitempty"`
	StopReason      string           `json:"stop_reason,omitempty"`
	Usage           TokenUsage       `json:"usage"`
}

// IsFinal reports whether the response is the final-answer variant.
func (r *CompletionResponse) IsFinal() bool {
	return len(r.CapabilityCalls) == 0
}

// TokenUsage tracks token consumption for one model turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across turns.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Client represents any language-model provider.
type Client interface {
	// Complete sends the message history and returns a response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier, for logging and events.
	Model() string
}
