// Package event defines the workflow lifecycle events and the ordered
// publish/subscribe bus that delivers them. There is no process-wide bus:
// callers construct one and hand it explicitly to the scheduler and the
// reasoning loop.
package event

import "time"

// Kind identifies a lifecycle event type.
type Kind string

const (
	WorkflowStart  Kind = "workflow_start"
	WorkflowFinish Kind = "workflow_finish"
	TaskStart      Kind = "task_start"
	TaskFinish     Kind = "task_finish"

	AgentStart            Kind = "agent_start"
	AgentModelCallStart   Kind = "agent_model_call_start"
	AgentModelCallEnd     Kind = "agent_model_call_end"
	AgentCapabilityCall   Kind = "agent_capability_call"
	AgentCapabilityResult Kind = "agent_capability_result"
	AgentEnd              Kind = "agent_end"
)

// Event is an immutable lifecycle record. Seq and Timestamp are stamped once
// at publish time; subscribers receive copies and must not retain pointers
// into Fields.
type Event struct {
	Kind      Kind           `json:"kind"`
	RunID     string         `json:"run_id"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Task      string         `json:"task,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Payload shapes per kind. Each constructor documents the stable field set
// for its event; these shapes are part of the subscriber contract.

// NewWorkflowStart carries the workflow name and the caller's initial payload keys.
func NewWorkflowStart(runID, workflow string, inputKeys []string) Event {
	return Event{Kind: WorkflowStart, RunID: runID, Fields: map[string]any{
		"workflow":   workflow,
		"input_keys": inputKeys,
	}}
}

// NewWorkflowFinish carries the workflow name and the final state version.
func NewWorkflowFinish(runID, workflow string, stateVersion int) Event {
	return Event{Kind: WorkflowFinish, RunID: runID, Fields: map[string]any{
		"workflow":      workflow,
		"state_version": stateVersion,
	}}
}

// NewTaskStart carries the 1-based attempt number for the task execution.
func NewTaskStart(runID, task string, attempt int) Event {
	return Event{Kind: TaskStart, RunID: runID, Task: task, Fields: map[string]any{
		"attempt": attempt,
	}}
}

// NewTaskFinish carries the post-merge state version and the mapped fields.
func NewTaskFinish(runID, task string, stateVersion int, mappedFields []string) Event {
	return Event{Kind: TaskFinish, RunID: runID, Task: task, Fields: map[string]any{
		"state_version": stateVersion,
		"mapped_fields": mappedFields,
	}}
}

// NewAgentStart marks the reasoning loop entering its Start state.
func NewAgentStart(runID, task, agent string) Event {
	return Event{Kind: AgentStart, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{}}
}

// NewAgentModelCallStart carries the loop iteration and the transcript length.
func NewAgentModelCallStart(runID, task, agent string, iteration, messageCount int) Event {
	return Event{Kind: AgentModelCallStart, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{
		"iteration":     iteration,
		"message_count": messageCount,
	}}
}

// NewAgentModelCallEnd carries the response shape: content bytes and the
// number of capability calls requested.
func NewAgentModelCallEnd(runID, task, agent string, iteration, contentBytes, capabilityCalls int) Event {
	return Event{Kind: AgentModelCallEnd, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{
		"iteration":        iteration,
		"content_bytes":    contentBytes,
		"capability_calls": capabilityCalls,
	}}
}

// NewAgentCapabilityCall marks one capability dispatch.
func NewAgentCapabilityCall(runID, task, agent, capability, callID string, args map[string]any) Event {
	return Event{Kind: AgentCapabilityCall, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{
		"capability": capability,
		"call_id":    callID,
		"arguments":  args,
	}}
}

// NewAgentCapabilityResult marks one capability result or invocation error.
func NewAgentCapabilityResult(runID, task, agent, capability, callID string, ok bool, detail string) Event {
	return Event{Kind: AgentCapabilityResult, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{
		"capability": capability,
		"call_id":    callID,
		"ok":         ok,
		"detail":     detail,
	}}
}

// NewAgentEnd carries the loop outcome: iterations used and whether the
// answer was truncated at the iteration cap.
func NewAgentEnd(runID, task, agent string, iterations int, truncated bool) Event {
	return Event{Kind: AgentEnd, RunID: runID, Task: task, Agent: agent, Fields: map[string]any{
		"iterations": iterations,
		"truncated":  truncated,
	}}
}
