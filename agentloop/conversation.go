package agentloop

import (
	"encoding/json"
	"fmt"

	"github.com/dirigent-dev/dirigent/llmclient"
)

// Conversation is the append-only ordered message log for one run. Insertion
// order is causal order. A Conversation is owned exclusively by one Runner
// and is never shared across concurrent runs, so it needs no locking.
//
// Append methods enforce the pairing invariants: a tool message always
// answers a tool call of the immediately preceding assistant message, result
// order equals call order, and every call gets exactly one result.
type Conversation struct {
	messages []llmclient.Message
}

// NewConversation creates an empty Conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AppendSystem appends a system message. Valid only as the first message.
func (c *Conversation) AppendSystem(text string) error {
	if len(c.messages) > 0 {
		return fmt.Errorf("system message must be first, conversation has %d messages", len(c.messages))
	}
	c.messages = append(c.messages, llmclient.SystemMessage(text))
	return nil
}

// AppendUser appends a user message.
func (c *Conversation) AppendUser(text string) {
	c.messages = append(c.messages, llmclient.UserMessage(text))
}

// AppendAssistant appends an assistant message, with or without tool calls.
func (c *Conversation) AppendAssistant(msg llmclient.Message) error {
	if msg.Role != llmclient.RoleAssistant {
		return fmt.Errorf("expected assistant role, got %s", msg.Role)
	}
	seen := make(map[string]bool, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		if tc.ID == "" {
			return fmt.Errorf("tool call %q has no ID", tc.Name)
		}
		if seen[tc.ID] {
			return fmt.Errorf("duplicate tool call ID %q in assistant message", tc.ID)
		}
		seen[tc.ID] = true
	}
	c.messages = append(c.messages, msg)
	return nil
}

// AppendToolResults appends one tool message per result. The immediately
// preceding message must be an assistant message whose tool calls pair 1:1
// with the results, in the same order.
func (c *Conversation) AppendToolResults(results []ToolResult) error {
	if len(c.messages) == 0 {
		return fmt.Errorf("no preceding assistant message")
	}
	last := c.messages[len(c.messages)-1]
	if last.Role != llmclient.RoleAssistant || len(last.ToolCalls) == 0 {
		return fmt.Errorf("preceding message is not an assistant message with tool calls")
	}
	if len(results) != len(last.ToolCalls) {
		return fmt.Errorf("got %d results for %d tool calls", len(results), len(last.ToolCalls))
	}
	for i, r := range results {
		if r.ToolCallID != last.ToolCalls[i].ID {
			return fmt.Errorf("result %d answers call %q, expected %q (result order must equal call order)",
				i, r.ToolCallID, last.ToolCalls[i].ID)
		}
	}
	for _, r := range results {
		c.messages = append(c.messages, llmclient.ToolResultMessage(r.ToolCallID, r.Name, r.Content(), r.Err != nil))
	}
	return nil
}

// Messages returns a copy of the message log.
func (c *Conversation) Messages() []llmclient.Message {
	out := make([]llmclient.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// MarshalJSON serializes the message log, for transcript persistence.
func (c *Conversation) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(c.messages, "", "  ")
}
