package capability

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loomerrors "loom/internal/errors"
	"loom/internal/logging"
)

func echoCapability() *Func {
	return &Func{
		Def: Definition{
			Name:        "echo",
			Description: "Returns its input text.",
			Parameters: ParameterSchema{
				Type: "object",
				Properties: map[string]Property{
					"text":   {Type: "string", Description: "Text to echo."},
					"repeat": {Type: "integer", Description: "Repetitions."},
				},
				Required: []string{"text"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) (*Result, error) {
			return TextResult(args["text"].(string)), nil
		},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(echoCapability()))
	err := r.Register(echoCapability())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestInvokeValidArguments(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(echoCapability()))

	result, err := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Content)
	assert.Equal(t, "hi", result.Data["output"])
}

func TestInvokeUnregisteredName(t *testing.T) {
	r := NewRegistry(logging.Nop())
	_, err := r.Invoke(context.Background(), "missing", nil)
	var ierr *loomerrors.InvocationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "missing", ierr.Capability)
}

func TestInvokeSchemaViolationsDoNotExecute(t *testing.T) {
	executed := false
	r := NewRegistry(logging.Nop())
	def := echoCapability().Def
	require.NoError(t, r.Register(&Func{
		Def: def,
		Fn: func(context.Context, map[string]any) (*Result, error) {
			executed = true
			return TextResult("x"), nil
		},
	}))

	cases := []map[string]any{
		{},                              // missing required
		{"text": "hi", "bogus": 1},      // unknown argument
		{"text": 42},                    // wrong type
		{"text": "hi", "repeat": "two"}, // wrong type on optional
	}
	for i, args := range cases {
		_, err := r.Invoke(context.Background(), "echo", args)
		var ierr *loomerrors.InvocationError
		require.ErrorAs(t, err, &ierr, "case %d", i)
	}
	assert.False(t, executed, "callable must not run on schema violation")
}

func TestInvokeWrapsCallableFailure(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(&Func{
		Def: Definition{Name: "flaky", Parameters: ParameterSchema{Type: "object"}},
		Fn: func(context.Context, map[string]any) (*Result, error) {
			return nil, fmt.Errorf("backend down")
		},
	}))

	_, err := r.Invoke(context.Background(), "flaky", nil)
	var ierr *loomerrors.InvocationError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, err.Error(), "backend down")
}

func TestIntegerAcceptsJSONNumbers(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(echoCapability()))

	// JSON decoding yields float64 for tool-call arguments.
	_, err := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi", "repeat": float64(2)})
	require.NoError(t, err)
}

func TestListIsSortedAndUnregisterWorks(t *testing.T) {
	r := NewRegistry(logging.Nop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(&Func{
			Def: Definition{Name: name, Parameters: ParameterSchema{Type: "object"}},
			Fn:  func(context.Context, map[string]any) (*Result, error) { return TextResult(""), nil },
		}))
	}

	defs := r.List()
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{defs[0].Name, defs[1].Name, defs[2].Name})

	require.NoError(t, r.Unregister("mid"))
	assert.Len(t, r.List(), 2)
	require.Error(t, r.Unregister("mid"))
}
