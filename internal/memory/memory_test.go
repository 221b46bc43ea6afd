package memory

import (
	"context"
	"math"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/llm"
)

func TestConversationRecallReturnsAllWithoutBudget(t *testing.T) {
	conv := NewConversation()
	ctx := context.Background()

	err := conv.Store(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "second"},
	})
	require.NoError(t, err)

	recalled, err := conv.Recall(ctx, "")
	require.NoError(t, err)
	require.Len(t, recalled, 2)
	assert.Equal(t, "first", recalled[0].Content)
	assert.Equal(t, "second", recalled[1].Content)
}

func TestConversationTokenBudgetDropsOldest(t *testing.T) {
	// One token per message keeps the arithmetic obvious.
	conv := NewConversation(
		WithTokenBudget(2),
		WithTokenCounter(func(string) int { return 1 }),
	)
	ctx := context.Background()

	require.NoError(t, conv.Store(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: "a"},
		{Role: llm.RoleAssistant, Content: "b"},
		{Role: llm.RoleUser, Content: "c"},
	}))

	recalled, err := conv.Recall(ctx, "")
	require.NoError(t, err)
	require.Len(t, recalled, 2)
	assert.Equal(t, "b", recalled[0].Content)
	assert.Equal(t, "c", recalled[1].Content)
}

func TestConversationRecallCopiesBuffer(t *testing.T) {
	conv := NewConversation()
	ctx := context.Background()
	require.NoError(t, conv.Store(ctx, []llm.Message{{Role: llm.RoleUser, Content: "original"}}))

	recalled, err := conv.Recall(ctx, "")
	require.NoError(t, err)
	recalled[0].Content = "mutated"

	again, err := conv.Recall(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.GreaterOrEqual(t, EstimateTokens("one two three four"), 4)
}

// testEmbedding maps each known phrase to a fixed unit vector so similarity
// is deterministic without a provider.
func testEmbedding() chromem.EmbeddingFunc {
	axes := map[string]int{
		"the capital of France is Paris": 0,
		"water boils at 100 celsius":     1,
		"Paris":                          0,
		"boiling point":                  1,
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, 4)
		axis, ok := axes[text]
		if !ok {
			// Unknown text lands between axes so nothing matches strongly.
			for i := range vec {
				vec[i] = float32(1 / math.Sqrt(4))
			}
			return vec, nil
		}
		vec[axis] = 1
		return vec, nil
	}
}

func TestVectorRecallReturnsNearestMessage(t *testing.T) {
	mem, err := NewVector(VectorConfig{TopK: 1, MinSimilarity: 0.9}, testEmbedding())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mem.Store(ctx, []llm.Message{
		{Role: llm.RoleAssistant, Content: "the capital of France is Paris"},
		{Role: llm.RoleAssistant, Content: "water boils at 100 celsius"},
	}))
	assert.Equal(t, 2, mem.Count())

	recalled, err := mem.Recall(ctx, "Paris")
	require.NoError(t, err)
	require.Len(t, recalled, 1)
	assert.Equal(t, "the capital of France is Paris", recalled[0].Content)
	assert.Equal(t, llm.RoleAssistant, recalled[0].Role)
}

func TestVectorRecallEmptyStore(t *testing.T) {
	mem, err := NewVector(VectorConfig{}, testEmbedding())
	require.NoError(t, err)

	recalled, err := mem.Recall(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, recalled)
}

func TestVectorStoreSkipsEmptyContent(t *testing.T) {
	mem, err := NewVector(VectorConfig{}, testEmbedding())
	require.NoError(t, err)

	require.NoError(t, mem.Store(context.Background(), []llm.Message{
		{Role: llm.RoleAssistant, Content: ""},
		{Role: llm.RoleAssistant, Content: "kept"},
	}))
	assert.Equal(t, 1, mem.Count())
}
