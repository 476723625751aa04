package agentloop

import "fmt"

// ToolErrorKind classifies a tool failure. Tool failures are data: they are
// packaged into a ToolResult and fed back to the model, never aborting the
// run.
type ToolErrorKind string

const (
	// ToolErrSchemaValidation means the call's arguments did not match the
	// tool's parameter schema; the tool was never invoked.
	ToolErrSchemaValidation ToolErrorKind = "schema_validation"
	// ToolErrPathEscape means a path resolved outside the target directory;
	// no filesystem access was performed.
	ToolErrPathEscape ToolErrorKind = "path_escape"
	// ToolErrTimeout means a shell invocation exceeded its wall-clock limit.
	// Partial captured output accompanies the error.
	ToolErrTimeout ToolErrorKind = "timeout"
	// ToolErrExecution covers every other failure inside a tool.
	ToolErrExecution ToolErrorKind = "execution"
)

// ToolError is a classified tool failure carried inside a ToolResult.
type ToolError struct {
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewToolError creates a classified tool error.
func NewToolError(kind ToolErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// LoopErrorKind classifies an orchestration-level failure. Unlike tool
// errors, these are fatal: they transition the run to Failed.
type LoopErrorKind string

const (
	// ErrBudgetExceeded means the turn counter passed the configured maximum.
	ErrBudgetExceeded LoopErrorKind = "budget_exceeded"
	// ErrDuplicateTool means a tool name was registered twice.
	ErrDuplicateTool LoopErrorKind = "duplicate_tool"
	// ErrToolNotFound means a dispatched call named an unregistered tool.
	ErrToolNotFound LoopErrorKind = "tool_not_found"
)

// LoopError is a fatal orchestration error.
type LoopError struct {
	Kind    LoopErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewLoopError creates a classified loop error.
func NewLoopError(kind LoopErrorKind, format string, args ...any) *LoopError {
	return &LoopError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
