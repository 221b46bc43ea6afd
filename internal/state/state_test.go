package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loomerrors "loom/internal/errors"
)

func researchSchema() Schema {
	return Schema{
		"topic":          {Type: FieldString, Required: true},
		"search_results": {Type: FieldList},
		"summary":        {Type: FieldString, Default: ""},
		"confidence":     {Type: FieldFloat, Default: 0.0},
	}
}

func TestNewAppliesDefaultsAndPayload(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "go concurrency"})
	require.NoError(t, err)

	assert.Equal(t, "go concurrency", st.GetString("topic"))
	assert.Equal(t, "", st.GetString("summary"))
	conf, ok := st.Get("confidence")
	require.True(t, ok)
	assert.Equal(t, 0.0, conf)
	assert.Equal(t, 0, st.Version())
}

func TestNewRejectsUnknownField(t *testing.T) {
	_, err := New(researchSchema(), map[string]any{"topic": "x", "bogus": 1})
	var verr *loomerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bogus", verr.Field)
}

func TestNewRejectsMissingRequiredField(t *testing.T) {
	_, err := New(researchSchema(), map[string]any{})
	var verr *loomerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "topic", verr.Field)
}

func TestNewRejectsTypeMismatch(t *testing.T) {
	_, err := New(researchSchema(), map[string]any{"topic": 42})
	var verr *loomerrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMergeProducesNewSnapshot(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "x"})
	require.NoError(t, err)

	next, err := st.Merge("summarize", map[string]string{"summary": "output"}, map[string]any{"output": "S1"})
	require.NoError(t, err)

	assert.Equal(t, "S1", next.GetString("summary"))
	assert.Equal(t, 1, next.Version())
	// Prior snapshot untouched.
	assert.Equal(t, "", st.GetString("summary"))
	assert.Equal(t, 0, st.Version())
	// Merge never removes fields.
	assert.Equal(t, "x", next.GetString("topic"))
}

func TestMergeMissingResultKeyIsMappingError(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "x"})
	require.NoError(t, err)

	_, err = st.Merge("summarize", map[string]string{"summary": "output"}, map[string]any{"other": "S1"})
	var merr *loomerrors.MappingError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "summarize", merr.Task)
	assert.Equal(t, "output", merr.ResultKey)
	assert.False(t, loomerrors.IsFatal(err), "mapping errors are retryable, not fatal")
}

func TestMergeTypeMismatchIsValidationError(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "x"})
	require.NoError(t, err)

	_, err = st.Merge("score", map[string]string{"confidence": "output"}, map[string]any{"output": "high"})
	var verr *loomerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, loomerrors.IsFatal(err))
}

func TestMergeUndeclaredTargetFieldRejected(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "x"})
	require.NoError(t, err)

	_, err = st.Merge("task", map[string]string{"nope": "output"}, map[string]any{"output": "v"})
	var verr *loomerrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNumericCoercion(t *testing.T) {
	schema := Schema{"count": {Type: FieldInt}, "ratio": {Type: FieldFloat}}

	st, err := New(schema, map[string]any{"count": float64(3), "ratio": 2})
	require.NoError(t, err)
	count, _ := st.Get("count")
	assert.Equal(t, 3, count)
	ratio, _ := st.Get("ratio")
	assert.Equal(t, 2.0, ratio)

	_, err = New(schema, map[string]any{"count": 3.5})
	require.Error(t, err)
}

func TestRestoreRoundTrip(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{"topic": "x"})
	require.NoError(t, err)
	next, err := st.Merge("a", map[string]string{"summary": "output"}, map[string]any{"output": "S"})
	require.NoError(t, err)

	restored, err := Restore(researchSchema(), next.Values(), next.Version())
	require.NoError(t, err)
	assert.Equal(t, next.Values(), restored.Values())
	assert.Equal(t, next.Version(), restored.Version())
}

func TestLen(t *testing.T) {
	st, err := New(researchSchema(), map[string]any{
		"topic":          "x",
		"search_results": []any{"a", "b", "c"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, st.Len("search_results"))
	assert.Equal(t, 1, st.Len("topic"))
	assert.Equal(t, -1, st.Len("summary_missing"))
}
