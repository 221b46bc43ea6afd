package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces prefixed identifiers for runs, calls, and events.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewRunID generates a workflow run identifier with a stable prefix for display.
func NewRunID() string {
	return defaultGenerator.newIdentifier("run")
}

// NewCallID generates an identifier for a single capability invocation.
func NewCallID() string {
	return defaultGenerator.newIdentifier("call")
}

// NewRequestID generates an identifier for one model request.
func NewRequestID() string {
	return defaultGenerator.newIdentifier("req")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	switch strategy {
	case StrategyUUIDv7:
		if v7, err := uuid.NewV7(); err == nil {
			return fmt.Sprintf("%s_%s", prefix, v7.String())
		}
		return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
	default:
		return fmt.Sprintf("%s_%s", prefix, ksuid.New().String())
	}
}
