package agentloop

import (
	"time"

	"github.com/dirigent-dev/dirigent/llmclient"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventTurnStarted      EventKind = "turn_started"
	EventTokenStreamed    EventKind = "token_streamed"
	EventToolCallStarted  EventKind = "tool_call_started"
	EventToolCallFinished EventKind = "tool_call_finished"
	EventTurnCompleted    EventKind = "turn_completed"
	EventTokenUsage       EventKind = "token_usage"
	EventRunFailed        EventKind = "run_failed"
	EventRunDone          EventKind = "run_done"
)

// AgentEvent is the bus payload. It carries enough data for a passive
// consumer to reconstruct run progress without touching the conversation.
type AgentEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Turn      int       `json:"turn"`

	// Text holds a streamed token delta, the final answer, or an error
	// description, depending on Kind.
	Text string `json:"text,omitempty"`

	// Tool call fields, set on EventToolCallStarted/Finished. Output is the
	// full untruncated tool output; the conversation may hold a truncated
	// copy.
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Output     string `json:"output,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Usage is set on EventTokenUsage with the run's cumulative counts.
	Usage *llmclient.Usage `json:"usage,omitempty"`
}

func newEvent(kind EventKind, runID string, turn int) AgentEvent {
	return AgentEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		RunID:     runID,
		Turn:      turn,
	}
}
