package engine

import (
	"context"

	"loom/internal/graph"
)

// Snapshot is one post-merge view of the run's state, emitted after each
// completed task.
type Snapshot struct {
	RunID        string         `json:"run_id"`
	Task         string         `json:"task"`
	StateVersion int            `json:"state_version"`
	Values       map[string]any `json:"values"`
}

// Stream runs the graph in a goroutine and delivers a Snapshot after every
// completed task. The snapshot channel closes when the run ends; a failed run
// additionally delivers its error before the error channel closes.
func (e *Engine) Stream(ctx context.Context, g *graph.CompiledGraph, payload map[string]any) (<-chan Snapshot, <-chan error) {
	snapshots := make(chan Snapshot, 16)
	errs := make(chan error, 1)

	// A shallow copy so the snapshot channel never leaks into other runs.
	streaming := *e
	streaming.snapshots = snapshots

	go func() {
		defer close(snapshots)
		defer close(errs)
		if _, err := streaming.Run(ctx, g, payload); err != nil {
			errs <- err
		}
	}()

	return snapshots, errs
}
