// Package checkpoint persists run progress so an interrupted workflow can be
// resumed from its last completed task rather than restarted.
package checkpoint

import (
	"context"
	"time"
)

// Record captures run progress after one task completes: the state snapshot
// that merge produced and the sequence number of the last published event.
type Record struct {
	RunID             string         `json:"run_id"`
	Workflow          string         `json:"workflow"`
	LastCompletedNode string         `json:"last_completed_node"`
	State             map[string]any `json:"state"`
	StateVersion      int            `json:"state_version"`
	Seq               uint64         `json:"seq"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Store persists checkpoint records per run.
type Store interface {
	// Save appends a record for its run.
	Save(ctx context.Context, record Record) error

	// Latest returns the most recent record for the run, or nil when the
	// run has no checkpoints.
	Latest(ctx context.Context, runID string) (*Record, error)

	// List returns every record for the run in save order.
	List(ctx context.Context, runID string) ([]Record, error)
}
