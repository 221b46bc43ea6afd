// Package memory provides conversation memory backends for agents. A memory
// supplies prior context to a reasoning loop before it starts and records the
// exchange after it finishes.
package memory

import (
	"context"
	"sync"

	"loom/internal/llm"
)

// Memory recalls context relevant to a query and stores completed exchanges.
type Memory interface {
	// Recall returns messages to prepend to an agent's conversation.
	Recall(ctx context.Context, query string) ([]llm.Message, error)

	// Store persists messages from a completed exchange.
	Store(ctx context.Context, messages []llm.Message) error
}

// Conversation is a bounded in-process message buffer. Recall returns the
// most recent messages that fit within the token budget, oldest first.
type Conversation struct {
	mu         sync.RWMutex
	messages   []llm.Message
	maxTokens  int
	countToken func(string) int
}

// ConversationOption customizes a Conversation.
type ConversationOption func(*Conversation)

// WithTokenBudget caps the total tokens Recall may return. Zero means
// unlimited.
func WithTokenBudget(maxTokens int) ConversationOption {
	return func(c *Conversation) {
		c.maxTokens = maxTokens
	}
}

// WithTokenCounter overrides the token counting function. Useful in tests.
func WithTokenCounter(fn func(string) int) ConversationOption {
	return func(c *Conversation) {
		c.countToken = fn
	}
}

// NewConversation creates an empty conversation buffer.
func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{
		countToken: CountTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recall returns buffered messages in original order. When a token budget is
// set, it walks backwards from the newest message and drops the oldest
// messages that would exceed the budget.
func (c *Conversation) Recall(_ context.Context, _ string) ([]llm.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.maxTokens <= 0 {
		out := make([]llm.Message, len(c.messages))
		copy(out, c.messages)
		return out, nil
	}

	total := 0
	start := len(c.messages)
	for i := len(c.messages) - 1; i >= 0; i-- {
		cost := c.countToken(c.messages[i].Content)
		if total+cost > c.maxTokens {
			break
		}
		total += cost
		start = i
	}

	out := make([]llm.Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out, nil
}

// Store appends messages to the buffer.
func (c *Conversation) Store(_ context.Context, messages []llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messages...)
	return nil
}

// Len returns the number of buffered messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
