package errors

import (
	"errors"
	"fmt"
	"strings"
)

// CompileError reports a structurally invalid workflow graph. It is always
// fatal and is produced before any task executes.
type CompileError struct {
	Node    string // offending node, when known
	Edge    string // offending edge in "src -> dst" form, when known
	Message string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile error")
	if e.Node != "" {
		fmt.Fprintf(&b, " at node %q", e.Node)
	}
	if e.Edge != "" {
		fmt.Fprintf(&b, " at edge %s", e.Edge)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ValidationError reports a bad initial payload or a state/type violation.
// Fatal: the run never starts, or aborts at the merge that would corrupt state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}

// MappingError reports that a declared output-mapping key was absent from a
// task result. It fails only the producing attempt and is subject to the
// node's retry policy.
type MappingError struct {
	Task      string
	ResultKey string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("task %q result is missing mapped key %q", e.Task, e.ResultKey)
}

// InvocationError wraps a failed or malformed capability call. Inside the
// reasoning loop it is surfaced to the model as an observation; for direct
// capability tasks it is retryable per the node's policy.
type InvocationError struct {
	Capability string
	Err        error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("capability %q: %v", e.Capability, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// RoutingError reports a conditional router returning a value with no
// declared destination. Fatal, never retried, never silently mapped.
type RoutingError struct {
	Node  string
	Value string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("router at node %q returned undeclared destination %q", e.Node, e.Value)
}

// RunError reports a task that exhausted its retry budget. The run aborts but
// the last successful checkpoint is preserved for inspection and resume.
type RunError struct {
	RunID    string
	Node     string
	Attempts int
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: node %q failed after %d attempt(s): %v", e.RunID, e.Node, e.Attempts, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// IsFatal reports whether err belongs to a class that must abort the run
// immediately instead of consuming retry attempts.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var compileErr *CompileError
	var validationErr *ValidationError
	var routingErr *RoutingError
	return errors.As(err, &compileErr) ||
		errors.As(err, &validationErr) ||
		errors.As(err, &routingErr)
}
