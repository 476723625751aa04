package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dirigent-dev/dirigent/llmclient"
)

// ToolFunc executes a tool against parsed arguments. The returned string is
// the output fed back to the model. A returned *ToolError keeps its
// classification; any other error is recorded as an execution failure. On
// failure the returned string, if non-empty, is kept as partial output.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool pairs the serializable metadata sent to the model with its executor.
// Parameters is a JSON Schema object in the function-call wire shape.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     ToolFunc
}

// ToolResult is the outcome of dispatching one ToolCall, paired 1:1 with it
// by ToolCallID. Err is data, not control flow: a failed tool never aborts
// the run.
type ToolResult struct {
	ToolCallID string     `json:"tool_call_id"`
	Name       string     `json:"name"`
	Output     string     `json:"output,omitempty"`
	Err        *ToolError `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Content renders the result as the text fed back to the model.
func (r ToolResult) Content() string {
	if r.Err == nil {
		return r.Output
	}
	if r.Output != "" {
		return "Error: " + r.Err.Error() + "\n\nPartial output:\n" + r.Output
	}
	return "Error: " + r.Err.Error()
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry maps tool names to capabilities. Tools are registered once at
// startup and the registry is read-only thereafter, so lookups need no
// locking; registration itself is not safe for concurrent use.
type Registry struct {
	tools         map[string]*registeredTool
	order         []string
	maxConcurrent int
}

// NewRegistry creates an empty Registry. maxConcurrent bounds parallel tool
// execution within one turn; values below 1 mean sequential dispatch.
func NewRegistry(maxConcurrent int) *Registry {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Registry{
		tools:         make(map[string]*registeredTool),
		maxConcurrent: maxConcurrent,
	}
}

// Register adds a tool, compiling its parameter schema. A name collision
// fails with ErrDuplicateTool: silently replacing a tool would change run
// semantics behind the caller's back.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name]; exists {
		return NewLoopError(ErrDuplicateTool, "tool %q is already registered", t.Name)
	}

	schemaJSON, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %q has unserializable parameters: %w", t.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + t.Name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("tool %q schema: %w", t.Name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %q schema does not compile: %w", t.Name, err)
	}

	r.tools[t.Name] = &registeredTool{tool: t, schema: schema}
	r.order = append(r.order, t.Name)
	return nil
}

// Resolve returns the tool with the given name.
func (r *Registry) Resolve(name string) (*Tool, error) {
	rt, ok := r.tools[name]
	if !ok {
		return nil, NewLoopError(ErrToolNotFound, "tool %q is not registered", name)
	}
	return &rt.tool, nil
}

// Definitions returns tool definitions in registration order, for sending to
// the model.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	defs := make([]llmclient.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name].tool
		defs = append(defs, llmclient.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int { return len(r.tools) }

// Dispatch validates and executes one tool call. Arguments are validated
// against the tool's schema before invocation; a validation failure produces
// a schema_validation result without invoking the capability. An unregistered
// tool name produces an execution result naming the problem, so the model
// can correct itself.
func (r *Registry) Dispatch(ctx context.Context, call llmclient.ToolCall) ToolResult {
	result := ToolResult{ToolCallID: call.ID, Name: call.Name}
	start := time.Now()
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
	}()

	rt, ok := r.tools[call.Name]
	if !ok {
		result.Err = NewToolError(ToolErrExecution, "tool %q is not registered", call.Name)
		return result
	}

	var args any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		result.Err = NewToolError(ToolErrSchemaValidation, "arguments are not valid JSON: %v", err)
		return result
	}
	if err := rt.schema.Validate(args); err != nil {
		result.Err = NewToolError(ToolErrSchemaValidation, "%v", err)
		return result
	}

	output, err := rt.tool.Execute(ctx, call.Arguments)
	result.Output = output
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			result.Err = te
		} else {
			result.Err = NewToolError(ToolErrExecution, "%v", err)
		}
	}
	return result
}

// DispatchObserver receives per-call notifications as a dispatch round
// proceeds. Callbacks may fire concurrently for different calls.
type DispatchObserver struct {
	Started  func(call llmclient.ToolCall)
	Finished func(call llmclient.ToolCall, result ToolResult)
}

// DispatchAll executes a turn's tool calls, bounded by the registry's
// concurrency limit. Calls are independent, so they may run in parallel, but
// results are reassembled in emission order keyed by ToolCallID: consumers
// must not assume execution order equals completion order, only that the
// recorded order is deterministic.
func (r *Registry) DispatchAll(ctx context.Context, calls []llmclient.ToolCall, obs *DispatchObserver) []ToolResult {
	results := make([]ToolResult, len(calls))
	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llmclient.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if obs != nil && obs.Started != nil {
				obs.Started(call)
			}
			result := r.Dispatch(ctx, call)
			if obs != nil && obs.Finished != nil {
				obs.Finished(call, result)
			}
			results[i] = result
		}(i, call)
	}
	wg.Wait()
	return results
}

// ParseToolArguments unmarshals tool call arguments into a map.
func ParseToolArguments(raw json.RawMessage) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewToolError(ToolErrSchemaValidation, "invalid tool arguments: %v", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
