package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/logging"
)

func countingCapability(name string, calls *int) *Func {
	return &Func{
		Def: Definition{
			Name: name,
			Parameters: ParameterSchema{
				Type:       "object",
				Properties: map[string]Property{"q": {Type: "string"}},
			},
		},
		Fn: func(_ context.Context, args map[string]any) (*Result, error) {
			*calls++
			return TextResult("result"), nil
		},
	}
}

func TestCachedRegistryMemoizesIdenticalCalls(t *testing.T) {
	calls := 0
	base := NewRegistry(logging.Nop())
	require.NoError(t, base.Register(countingCapability("lookup", &calls)))

	cached, err := NewCachedRegistry(base, CacheConfig{MaxSize: 16, TTL: time.Minute}, logging.Nop())
	require.NoError(t, err)

	args := map[string]any{"q": "golang"}
	for i := 0; i < 3; i++ {
		result, err := cached.Invoke(context.Background(), "lookup", args)
		require.NoError(t, err)
		assert.Equal(t, "result", result.Content)
	}
	assert.Equal(t, 1, calls)

	// Different arguments miss.
	_, err = cached.Invoke(context.Background(), "lookup", map[string]any{"q": "rust"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedRegistryRespectsExclusions(t *testing.T) {
	calls := 0
	base := NewRegistry(logging.Nop())
	require.NoError(t, base.Register(countingCapability("file_write", &calls)))

	cached, err := NewCachedRegistry(base, CacheConfig{
		MaxSize:             16,
		TTL:                 time.Minute,
		ExcludeCapabilities: []string{"file_write"},
	}, logging.Nop())
	require.NoError(t, err)

	args := map[string]any{"q": "same"}
	for i := 0; i < 2; i++ {
		_, err := cached.Invoke(context.Background(), "file_write", args)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls, "excluded capabilities must never be cached")
}

func TestCachedRegistryExpiresEntries(t *testing.T) {
	calls := 0
	base := NewRegistry(logging.Nop())
	require.NoError(t, base.Register(countingCapability("lookup", &calls)))

	cached, err := NewCachedRegistry(base, CacheConfig{MaxSize: 16, TTL: time.Millisecond}, logging.Nop())
	require.NoError(t, err)

	args := map[string]any{"q": "golang"}
	_, err = cached.Invoke(context.Background(), "lookup", args)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cached.Invoke(context.Background(), "lookup", args)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
