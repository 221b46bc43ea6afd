package builtin

import (
	"context"

	"loom/internal/capability"
)

type think struct{}

// NewThink builds the think capability: a scratchpad that records a thought
// as an observation without touching anything. Models use it to structure
// multi-step reasoning between real capability calls.
func NewThink() capability.Capability {
	return think{}
}

func (think) Definition() capability.Definition {
	return capability.Definition{
		Name:        "think",
		Description: "Record a thought for later steps. Has no side effects.",
		Parameters: capability.ParameterSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"thought": {Type: "string", Description: "The thought to record."},
			},
			Required: []string{"thought"},
		},
	}
}

func (think) Execute(_ context.Context, args map[string]any) (*capability.Result, error) {
	thought, _ := args["thought"].(string)
	return &capability.Result{
		Content: "Thought recorded.",
		Data:    map[string]any{"output": thought},
	}, nil
}
