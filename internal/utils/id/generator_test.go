package id

import (
	"strings"
	"testing"
)

func TestNewRunIDHasPrefixAndIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		got := NewRunID()
		if !strings.HasPrefix(got, "run_") {
			t.Fatalf("unexpected prefix: %s", got)
		}
		if seen[got] {
			t.Fatalf("duplicate run id generated: %s", got)
		}
		seen[got] = true
	}
}

func TestUUIDv7Strategy(t *testing.T) {
	SetStrategy(StrategyUUIDv7)
	defer SetStrategy(StrategyKSUID)

	got := NewCallID()
	if !strings.HasPrefix(got, "call_") {
		t.Fatalf("unexpected prefix: %s", got)
	}
	// UUID body has four dashes.
	if strings.Count(got, "-") != 4 {
		t.Fatalf("expected uuid-shaped identifier, got %s", got)
	}
}
