package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/logging"
)

func sampleRecord(runID, node string, seq uint64) Record {
	return Record{
		RunID:             runID,
		Workflow:          "research",
		LastCompletedNode: node,
		State:             map[string]any{"topic": "go schedulers", "step": node},
		StateVersion:      int(seq),
		Seq:               seq,
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreSaveAndLatest(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			latest, err := store.Latest(ctx, "run_none")
			require.NoError(t, err)
			assert.Nil(t, latest)

			require.NoError(t, store.Save(ctx, sampleRecord("run_1", "search", 3)))
			require.NoError(t, store.Save(ctx, sampleRecord("run_1", "summarize", 7)))

			latest, err = store.Latest(ctx, "run_1")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, "summarize", latest.LastCompletedNode)
			assert.Equal(t, uint64(7), latest.Seq)
			assert.Equal(t, "go schedulers", latest.State["topic"])
		})
	}
}

func TestStoreListPreservesSaveOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			nodes := []string{"a", "b", "c"}
			for i, node := range nodes {
				require.NoError(t, store.Save(ctx, sampleRecord("run_2", node, uint64(i+1))))
			}

			records, err := store.List(ctx, "run_2")
			require.NoError(t, err)
			require.Len(t, records, 3)
			for i, node := range nodes {
				assert.Equal(t, node, records[i].LastCompletedNode)
			}
		})
	}
}

func TestStoreIsolatesRuns(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleRecord("run_a", "first", 1)))
			require.NoError(t, store.Save(ctx, sampleRecord("run_b", "other", 1)))

			latest, err := store.Latest(ctx, "run_a")
			require.NoError(t, err)
			assert.Equal(t, "first", latest.LastCompletedNode)

			records, err := store.List(ctx, "run_b")
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "other", records[0].LastCompletedNode)
		})
	}
}

func TestFileStoreContinuesNumberingAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sampleRecord("run_3", "a", 1)))

	// A fresh instance over the same directory must append, not clobber.
	second, err := NewFileStore(dir, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, second.Save(ctx, sampleRecord("run_3", "b", 2)))

	records, err := second.List(ctx, "run_3")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].LastCompletedNode)
	assert.Equal(t, "b", records[1].LastCompletedNode)
}
