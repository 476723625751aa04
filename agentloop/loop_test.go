package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dirigent-dev/dirigent/llmclient"
)

type scriptStep struct {
	resp *llmclient.Response
	err  error
}

// scriptedAdapter plays back a fixed sequence of completions. Streaming and
// blocking calls consume the same script, so the two paths can be compared
// for equivalence.
type scriptedAdapter struct {
	steps []scriptStep
	idx   int
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) next() scriptStep {
	if s.idx >= len(s.steps) {
		return scriptStep{err: llmclient.Unavailable("scripted", "script exhausted", nil)}
	}
	st := s.steps[s.idx]
	s.idx++
	return st
}

func (s *scriptedAdapter) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Response, error) {
	st := s.next()
	return st.resp, st.err
}

func (s *scriptedAdapter) Stream(ctx context.Context, req llmclient.Request) (<-chan llmclient.StreamEvent, error) {
	st := s.next()
	if st.err != nil {
		return nil, st.err
	}
	ch := make(chan llmclient.StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- llmclient.StreamEvent{Type: llmclient.StreamStart}
		content := st.resp.Message.Content
		for len(content) > 0 {
			n := 5
			if n > len(content) {
				n = len(content)
			}
			ch <- llmclient.StreamEvent{Type: llmclient.TextDelta, Delta: content[:n]}
			content = content[n:]
		}
		ch <- llmclient.StreamEvent{
			Type:         llmclient.StreamFinish,
			FinishReason: &st.resp.FinishReason,
			Usage:        &st.resp.Usage,
			Response:     st.resp,
		}
	}()
	return ch, nil
}

func textResponse(text string) *llmclient.Response {
	return &llmclient.Response{
		ID: "resp_text", Model: "test-model", Provider: "scripted",
		Message:      llmclient.AssistantMessage(text),
		FinishReason: llmclient.FinishReason{Reason: "stop"},
		Usage:        llmclient.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...llmclient.ToolCall) *llmclient.Response {
	return &llmclient.Response{
		ID: "resp_tools", Model: "test-model", Provider: "scripted",
		Message:      llmclient.Message{Role: llmclient.RoleAssistant, ToolCalls: calls},
		FinishReason: llmclient.FinishReason{Reason: "tool_calls"},
		Usage:        llmclient.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func newScriptedClient(steps ...scriptStep) *llmclient.Client {
	return llmclient.NewClient(llmclient.WithProvider(&scriptedAdapter{steps: steps}))
}

// runAndDrain runs the task and returns the result plus every bus event.
func runAndDrain(t *testing.T, runner *Runner, bus *Bus, task string) (Result, []AgentEvent) {
	t.Helper()
	sub := bus.Subscribe()
	result := runner.Run(context.Background(), task)
	bus.Close()
	var events []AgentEvent
	for ev := range sub {
		events = append(events, ev)
	}
	return result, events
}

func eventsOfKind(events []AgentEvent, kind EventKind) []AgentEvent {
	var out []AgentEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunnerListFilesScenario(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(ws.Root(), name), []byte("x"), 0644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	env := NewLocalEnvironment(ws)
	reg := NewRegistry(2)
	if err := RegisterCoreTools(reg, env, 5000, 10000); err != nil {
		t.Fatalf("setup: %v", err)
	}

	client := newScriptedClient(
		scriptStep{resp: toolCallResponse(llmclient.ToolCall{
			ID: "call_1", Name: "list_directory", Arguments: json.RawMessage(`{}`),
		})},
		scriptStep{resp: textResponse("The directory contains a.txt and b.txt.")},
	)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithModel("test-model"), WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "list files in the target directory")
	if result.State != StateDone {
		t.Fatalf("expected done, got %s (err: %v)", result.State, result.Err)
	}
	if result.Turns != 2 {
		t.Errorf("expected 2 turns, got %d", result.Turns)
	}
	if !strings.Contains(result.FinalText, "a.txt") || !strings.Contains(result.FinalText, "b.txt") {
		t.Errorf("final answer should reference both files: %q", result.FinalText)
	}

	// system, user, assistant-with-call, tool-result, assistant-final.
	msgs := result.Conversation.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	wantRoles := []llmclient.Role{
		llmclient.RoleSystem, llmclient.RoleUser, llmclient.RoleAssistant,
		llmclient.RoleTool, llmclient.RoleAssistant,
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("position %d: expected role %s, got %s", i, want, msgs[i].Role)
		}
	}
	if !strings.Contains(msgs[3].Content, "a.txt") || !strings.Contains(msgs[3].Content, "b.txt") {
		t.Errorf("tool result should list both files: %q", msgs[3].Content)
	}

	done := eventsOfKind(events, EventRunDone)
	if len(done) != 1 {
		t.Fatalf("expected one run_done event, got %d", len(done))
	}
	if !strings.Contains(done[0].Text, "a.txt") || !strings.Contains(done[0].Text, "b.txt") {
		t.Errorf("run_done should carry the final answer: %q", done[0].Text)
	}
	if got := len(eventsOfKind(events, EventToolCallStarted)); got != 1 {
		t.Errorf("expected 1 tool_call_started, got %d", got)
	}
	if got := len(eventsOfKind(events, EventToolCallFinished)); got != 1 {
		t.Errorf("expected 1 tool_call_finished, got %d", got)
	}
}

func TestRunnerBudgetExceeded(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(1)
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// A model that always wants another tool call never reaches Done.
	var steps []scriptStep
	for i := 0; i < 10; i++ {
		steps = append(steps, scriptStep{resp: toolCallResponse(llmclient.ToolCall{
			ID: fmt.Sprintf("call_%d", i), Name: "echo", Arguments: json.RawMessage(`{"text":"again"}`),
		})})
	}
	client := newScriptedClient(steps...)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithMaxTurns(3), WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "loop forever")
	if result.State != StateFailed {
		t.Fatalf("expected failed, got %s", result.State)
	}
	var le *LoopError
	if !errors.As(result.Err, &le) || le.Kind != ErrBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", result.Err)
	}
	if result.Turns != 3 {
		t.Errorf("expected exactly 3 turns, got %d", result.Turns)
	}
	failed := eventsOfKind(events, EventRunFailed)
	if len(failed) != 1 || failed[0].ErrorKind != string(ErrBudgetExceeded) {
		t.Errorf("expected run_failed with budget_exceeded, got %+v", failed)
	}
}

func TestRunnerFatalProviderError(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(1)
	client := newScriptedClient(
		scriptStep{err: llmclient.Unauthorized("scripted", "no credentials")},
	)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "anything")
	if result.State != StateFailed {
		t.Fatalf("expected failed, got %s", result.State)
	}
	var pe *llmclient.ProviderError
	if !errors.As(result.Err, &pe) || pe.Kind != llmclient.KindUnauthorized {
		t.Fatalf("expected unauthorized surfaced verbatim, got %v", result.Err)
	}
	failed := eventsOfKind(events, EventRunFailed)
	if len(failed) != 1 || failed[0].ErrorKind != string(llmclient.KindUnauthorized) {
		t.Errorf("expected run_failed carrying the error kind, got %+v", failed)
	}
}

func TestRunnerAbortBeforeModelCall(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(1)
	client := newScriptedClient(scriptStep{resp: textResponse("never reached")})
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithStreaming(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := bus.Subscribe()
	result := runner.Run(ctx, "anything")
	bus.Close()
	for range sub {
	}

	if result.State != StateAborted {
		t.Fatalf("expected aborted, got %s", result.State)
	}
	if result.AbortedFrom != StateIdle {
		t.Errorf("expected aborted from idle, got %s", result.AbortedFrom)
	}
	if result.Turns != 0 {
		t.Errorf("expected 0 turns, got %d", result.Turns)
	}
}

func TestRunnerToolErrorFedBack(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(2)
	if err := RegisterCoreTools(reg, env, 5000, 10000); err != nil {
		t.Fatalf("setup: %v", err)
	}

	client := newScriptedClient(
		scriptStep{resp: toolCallResponse(llmclient.ToolCall{
			ID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"file_path":"../outside.txt"}`),
		})},
		scriptStep{resp: textResponse("That path is outside the target directory.")},
	)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "read a file")
	// A tool failure is data for the model, never a run failure.
	if result.State != StateDone {
		t.Fatalf("expected done, got %s (err: %v)", result.State, result.Err)
	}

	msgs := result.Conversation.Messages()
	toolMsg := msgs[3]
	if toolMsg.Role != llmclient.RoleTool || !toolMsg.IsError {
		t.Fatalf("expected error tool message, got %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, string(ToolErrPathEscape)) {
		t.Errorf("expected error kind in fed-back content: %q", toolMsg.Content)
	}

	finished := eventsOfKind(events, EventToolCallFinished)
	if len(finished) != 1 || !finished[0].IsError || finished[0].ErrorKind != string(ToolErrPathEscape) {
		t.Errorf("expected tool_call_finished with path_escape, got %+v", finished)
	}
}

func TestRunnerShellTimeoutContinues(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(1)
	if err := RegisterCoreTools(reg, env, 200, 500); err != nil {
		t.Fatalf("setup: %v", err)
	}

	client := newScriptedClient(
		scriptStep{resp: toolCallResponse(llmclient.ToolCall{
			ID: "call_1", Name: "run_shell_command",
			Arguments: json.RawMessage(`{"command":"echo started; sleep 5"}`),
		})},
		scriptStep{resp: textResponse("The command timed out.")},
	)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "run something slow")
	if result.State != StateDone {
		t.Fatalf("expected done, got %s (err: %v)", result.State, result.Err)
	}

	finished := eventsOfKind(events, EventToolCallFinished)
	if len(finished) != 1 || finished[0].ErrorKind != string(ToolErrTimeout) {
		t.Fatalf("expected timeout error kind, got %+v", finished)
	}
	if !strings.Contains(finished[0].Output, "started") {
		t.Errorf("expected partial output captured, got %q", finished[0].Output)
	}

	// The model sees the partial output alongside the error.
	toolMsg := result.Conversation.Messages()[3]
	if !toolMsg.IsError || !strings.Contains(toolMsg.Content, "started") {
		t.Errorf("expected partial output fed back, got %+v", toolMsg)
	}
}

func TestRunnerStreamingEquivalence(t *testing.T) {
	finalText := "Streaming and blocking paths agree on this answer."

	run := func(streaming bool) (Result, []AgentEvent) {
		env := newTestEnv(t)
		reg := NewRegistry(1)
		client := newScriptedClient(scriptStep{resp: textResponse(finalText)})
		bus := NewBus(256)
		runner := NewRunner(client, reg, bus, env, WithStreaming(streaming))
		return runAndDrain(t, runner, bus, "answer directly")
	}

	streamed, streamedEvents := run(true)
	blocking, _ := run(false)

	if streamed.State != StateDone || blocking.State != StateDone {
		t.Fatalf("expected both done, got %s / %s", streamed.State, blocking.State)
	}
	if streamed.FinalText != blocking.FinalText {
		t.Errorf("paths disagree: %q vs %q", streamed.FinalText, blocking.FinalText)
	}

	// Concatenated token deltas equal the final answer.
	var concat strings.Builder
	for _, ev := range eventsOfKind(streamedEvents, EventTokenStreamed) {
		concat.WriteString(ev.Text)
	}
	if concat.String() != finalText {
		t.Errorf("token concat %q != final %q", concat.String(), finalText)
	}
}

func TestRunnerTokenUsageAccumulates(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistry(1)
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("setup: %v", err)
	}
	client := newScriptedClient(
		scriptStep{resp: toolCallResponse(llmclient.ToolCall{
			ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
		})},
		scriptStep{resp: textResponse("done")},
	)
	bus := NewBus(256)
	runner := NewRunner(client, reg, bus, env, WithStreaming(false))

	result, events := runAndDrain(t, runner, bus, "task")
	if result.Usage.TotalTokens != 30 {
		t.Errorf("expected cumulative usage 30, got %d", result.Usage.TotalTokens)
	}
	usageEvents := eventsOfKind(events, EventTokenUsage)
	if len(usageEvents) != 2 {
		t.Fatalf("expected 2 usage events, got %d", len(usageEvents))
	}
	if usageEvents[1].Usage == nil || usageEvents[1].Usage.TotalTokens != 30 {
		t.Errorf("expected cumulative counts on the last usage event, got %+v", usageEvents[1].Usage)
	}
}
