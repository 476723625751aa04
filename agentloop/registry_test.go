package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dirigent-dev/dirigent/llmclient"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, err := ParseToolArguments(args)
			if err != nil {
				return "", err
			}
			text, _ := GetStringArg(parsed, "text")
			return text, nil
		},
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(1)
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := reg.Register(echoTool("echo"))
	var le *LoopError
	if !errors.As(err, &le) || le.Kind != ErrDuplicateTool {
		t.Fatalf("expected duplicate_tool error, got %v", err)
	}
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(1)
	_, err := reg.Resolve("missing")
	var le *LoopError
	if !errors.As(err, &le) || le.Kind != ErrToolNotFound {
		t.Fatalf("expected tool_not_found error, got %v", err)
	}
}

func TestRegistryDefinitionsOrdered(t *testing.T) {
	reg := NewRegistry(1)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := reg.Register(echoTool(name)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if defs[i].Name != want {
			t.Errorf("position %d: expected %s, got %s", i, want, defs[i].Name)
		}
	}
}

func TestDispatchSchemaValidationShortCircuits(t *testing.T) {
	invoked := false
	reg := NewRegistry(1)
	tool := echoTool("echo")
	tool.Execute = func(ctx context.Context, args json.RawMessage) (string, error) {
		invoked = true
		return "", nil
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "text" is required and must be a string.
	result := reg.Dispatch(context.Background(), llmclient.ToolCall{
		ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"text": 42}`),
	})
	if result.Err == nil || result.Err.Kind != ToolErrSchemaValidation {
		t.Fatalf("expected schema_validation error, got %v", result.Err)
	}
	if invoked {
		t.Error("capability must not be invoked on validation failure")
	}

	result = reg.Dispatch(context.Background(), llmclient.ToolCall{
		ID: "call_2", Name: "echo", Arguments: json.RawMessage(`{}`),
	})
	if result.Err == nil || result.Err.Kind != ToolErrSchemaValidation {
		t.Fatalf("expected schema_validation error for missing required, got %v", result.Err)
	}
}

func TestDispatchUnknownToolIsData(t *testing.T) {
	reg := NewRegistry(1)
	result := reg.Dispatch(context.Background(), llmclient.ToolCall{
		ID: "call_1", Name: "hallucinated", Arguments: json.RawMessage(`{}`),
	})
	if result.Err == nil || result.Err.Kind != ToolErrExecution {
		t.Fatalf("expected execution error for unknown tool, got %v", result.Err)
	}
	if result.ToolCallID != "call_1" {
		t.Error("result must keep the call ID")
	}
}

func TestDispatchClassifiedErrorPreserved(t *testing.T) {
	reg := NewRegistry(1)
	tool := echoTool("escaper")
	tool.Execute = func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", NewToolError(ToolErrPathEscape, "outside the target directory")
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := reg.Dispatch(context.Background(), llmclient.ToolCall{
		ID: "call_1", Name: "escaper", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if result.Err == nil || result.Err.Kind != ToolErrPathEscape {
		t.Fatalf("expected path_escape preserved, got %v", result.Err)
	}
}

func TestDispatchAllOrderedReassembly(t *testing.T) {
	reg := NewRegistry(4)
	tool := Tool{
		Name:        "sleepy",
		Description: "sleeps then echoes",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "string"},
				"sleep_ms": map[string]any{"type": "integer"},
			},
			"required": []string{"id"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, _ := ParseToolArguments(args)
			id, _ := GetStringArg(parsed, "id")
			sleepMs, _ := GetIntArg(parsed, "sleep_ms")
			time.Sleep(time.Duration(sleepMs) * time.Millisecond)
			return id, nil
		},
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The first call finishes last; reassembly must still follow emission
	// order.
	calls := []llmclient.ToolCall{
		{ID: "call_a", Name: "sleepy", Arguments: json.RawMessage(`{"id":"a","sleep_ms":80}`)},
		{ID: "call_b", Name: "sleepy", Arguments: json.RawMessage(`{"id":"b","sleep_ms":20}`)},
		{ID: "call_c", Name: "sleepy", Arguments: json.RawMessage(`{"id":"c","sleep_ms":1}`)},
	}
	results := reg.DispatchAll(context.Background(), calls, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"call_a", "call_b", "call_c"} {
		if results[i].ToolCallID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].ToolCallID)
		}
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Output != want {
			t.Errorf("position %d: expected output %s, got %s", i, want, results[i].Output)
		}
	}
}

func TestDispatchAllBoundedConcurrency(t *testing.T) {
	var current, peak int32
	reg := NewRegistry(2)
	tool := Tool{
		Name:        "counter",
		Description: "tracks concurrency",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return "", nil
		},
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := make([]llmclient.ToolCall, 6)
	for i := range calls {
		calls[i] = llmclient.ToolCall{
			ID: fmt.Sprintf("call_%d", i), Name: "counter", Arguments: json.RawMessage(`{}`),
		}
	}
	reg.DispatchAll(context.Background(), calls, nil)
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("expected at most 2 concurrent executions, saw %d", p)
	}
}

func TestDispatchObserverSeesAllCalls(t *testing.T) {
	reg := NewRegistry(2)
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var started, finished int32
	calls := []llmclient.ToolCall{
		{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`)},
		{ID: "call_2", Name: "echo", Arguments: json.RawMessage(`{"text":"y"}`)},
	}
	reg.DispatchAll(context.Background(), calls, &DispatchObserver{
		Started:  func(llmclient.ToolCall) { atomic.AddInt32(&started, 1) },
		Finished: func(llmclient.ToolCall, ToolResult) { atomic.AddInt32(&finished, 1) },
	})
	if started != 2 || finished != 2 {
		t.Errorf("expected 2 started and 2 finished, got %d/%d", started, finished)
	}
}
