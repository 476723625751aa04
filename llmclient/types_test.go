package llmclient

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	sys := SystemMessage("be terse")
	if sys.Role != RoleSystem || sys.Content != "be terse" {
		t.Errorf("unexpected system message: %+v", sys)
	}

	usr := UserMessage("hello")
	if usr.Role != RoleUser || usr.Content != "hello" {
		t.Errorf("unexpected user message: %+v", usr)
	}

	asst := AssistantMessage("hi there")
	if asst.Role != RoleAssistant || asst.Content != "hi there" {
		t.Errorf("unexpected assistant message: %+v", asst)
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("call_1", "read_file", "contents", false)
	if msg.Role != RoleTool {
		t.Errorf("expected tool role, got %s", msg.Role)
	}
	if msg.ToolCallID != "call_1" || msg.Name != "read_file" {
		t.Errorf("expected call linkage preserved: %+v", msg)
	}
	if msg.IsError {
		t.Error("expected success result")
	}

	failed := ToolResultMessage("call_2", "run_shell_command", "exit 1", true)
	if !failed.IsError {
		t.Error("expected error result")
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	b := Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30}
	sum := a.Add(b)
	if sum.InputTokens != 120 || sum.OutputTokens != 60 || sum.TotalTokens != 180 {
		t.Errorf("unexpected sum: %+v", sum)
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: "done",
			ToolCalls: []ToolCall{
				{ID: "call_1", Name: "glob", Arguments: json.RawMessage(`{"pattern":"*.go"}`)},
			},
		},
	}
	if resp.Text() != "done" {
		t.Errorf("expected text accessor, got %q", resp.Text())
	}
	if len(resp.ToolCalls()) != 1 {
		t.Errorf("expected one tool call")
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role:    RoleAssistant,
		Content: "thinking",
		ToolCalls: []ToolCall{
			{ID: "call_9", Name: "grep", Arguments: json.RawMessage(`{"pattern":"TODO"}`)},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Role != RoleAssistant || len(back.ToolCalls) != 1 || back.ToolCalls[0].Name != "grep" {
		t.Errorf("round trip lost data: %+v", back)
	}
}
