package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgumentsValidJSON(t *testing.T) {
	args, err := ParseArguments(`{"query": "go", "limit": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "go", args["query"])
	assert.Equal(t, float64(3), args["limit"])
}

func TestParseArgumentsRepairsBrokenJSON(t *testing.T) {
	cases := []string{
		`{"query": "go",}`,        // trailing comma
		`{'query': 'go'}`,         // single quotes
		`{query: "go"}`,           // unquoted key
		"```json\n{\"query\": \"go\"}\n```", // fenced
	}
	for _, raw := range cases {
		args, err := ParseArguments(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, "go", args["query"], "input %q", raw)
	}
}

func TestParseArgumentsEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		args, err := ParseArguments(raw)
		require.NoError(t, err)
		assert.Empty(t, args)
	}
}

func TestResolveArgumentsPrefersDecoded(t *testing.T) {
	call := CapabilityCall{
		Arguments:    map[string]any{"a": 1},
		RawArguments: `{"a": 2}`,
	}
	args, err := ResolveArguments(call)
	require.NoError(t, err)
	assert.Equal(t, 1, args["a"])
}
