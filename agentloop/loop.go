package agentloop

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dirigent-dev/dirigent/llmclient"
)

// State is the Runner's position in its lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
	StateAborted        State = "aborted"
)

// Result is the outcome of one run.
type Result struct {
	State     State
	FinalText string
	Turns     int
	Err       error
	// AbortedFrom records which state the run was cancelled from, to aid
	// diagnosing whether tool side effects may be incomplete.
	AbortedFrom  State
	Usage        llmclient.Usage
	Conversation *Conversation
}

// Runner drives one task to completion: it requests completions, dispatches
// the tool calls they contain, feeds results back into the conversation, and
// emits progress events, until the model produces a final answer or the turn
// budget runs out.
//
// A Runner executes one task at a time. Its control flow is single-threaded:
// only one of {model completion, tool dispatch round, bus drain} is
// outstanding at any moment, except that tool calls within one turn may run
// in parallel (bounded by the registry's concurrency limit). Cancellation is
// cooperative, observed before each model call and before each dispatch
// round; in-flight tools finish or time out, never silently dropped.
type Runner struct {
	client   *llmclient.Client
	registry *Registry
	bus      *Bus
	env      Environment
	logger   *zap.Logger

	model      string
	provider   string
	maxTurns   int
	stream     bool
	charLimits map[string]int
	lineLimits map[string]int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithModel sets the model identifier for completions.
func WithModel(model string) RunnerOption {
	return func(r *Runner) { r.model = model }
}

// WithProviderName pins completions to a named provider instead of letting
// the client infer one from the model.
func WithProviderName(provider string) RunnerOption {
	return func(r *Runner) { r.provider = provider }
}

// WithMaxTurns sets the turn budget.
func WithMaxTurns(n int) RunnerOption {
	return func(r *Runner) { r.maxTurns = n }
}

// WithStreaming toggles streamed completions. When enabled, token deltas are
// re-emitted on the bus as they arrive.
func WithStreaming(enabled bool) RunnerOption {
	return func(r *Runner) { r.stream = enabled }
}

// WithTruncationLimits overrides per-tool output caps applied before tool
// results are fed back to the model.
func WithTruncationLimits(charLimits, lineLimits map[string]int) RunnerOption {
	return func(r *Runner) {
		r.charLimits = charLimits
		r.lineLimits = lineLimits
	}
}

// WithRunnerLogger sets the Runner's logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner wired to its collaborators. The registry and
// client are process-wide and read-only; the bus and a fresh Conversation
// belong to this Runner's runs alone.
func NewRunner(client *llmclient.Client, registry *Registry, bus *Bus, env Environment, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:   client,
		registry: registry,
		bus:      bus,
		env:      env,
		logger:   zap.NewNop(),
		maxTurns: 25,
		stream:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one task to a terminal state. The returned Result always
// carries the conversation, including for failed and aborted runs.
func (r *Runner) Run(ctx context.Context, task string) Result {
	runID := uuid.New().String()[:8]
	conv := NewConversation()
	if err := conv.AppendSystem(BuildSystemPrompt(r.env)); err != nil {
		return Result{State: StateFailed, Err: err, Conversation: conv}
	}
	conv.AppendUser(task)

	state := StateIdle
	turn := 0
	var usage llmclient.Usage

	fail := func(err error) Result {
		ev := newEvent(EventRunFailed, runID, turn)
		ev.Text = err.Error()
		ev.ErrorKind = errorKind(err)
		r.publish(ctx, ev)
		return Result{State: StateFailed, Turns: turn, Err: err, Usage: usage, Conversation: conv}
	}
	abort := func(from State) Result {
		ev := newEvent(EventRunFailed, runID, turn)
		ev.Text = "run aborted"
		ev.ErrorKind = "aborted"
		r.publish(context.Background(), ev)
		return Result{State: StateAborted, AbortedFrom: from, Turns: turn, Err: ctx.Err(), Usage: usage, Conversation: conv}
	}

	for {
		// Suspension point: before issuing a new model call.
		if ctx.Err() != nil {
			return abort(state)
		}

		if turn >= r.maxTurns {
			return fail(NewLoopError(ErrBudgetExceeded, "turn budget of %d exhausted", r.maxTurns))
		}
		turn++
		state = StateAwaitingModel
		r.publish(ctx, newEvent(EventTurnStarted, runID, turn))
		r.logger.Debug("turn started", zap.String("run_id", runID), zap.Int("turn", turn))

		resp, err := r.complete(ctx, runID, turn, conv)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return abort(state)
			}
			return fail(err)
		}

		usage = usage.Add(resp.Usage)
		usageEv := newEvent(EventTokenUsage, runID, turn)
		cumulative := usage
		usageEv.Usage = &cumulative
		r.publish(ctx, usageEv)

		if err := conv.AppendAssistant(resp.Message); err != nil {
			return fail(err)
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			r.publish(ctx, newEvent(EventTurnCompleted, runID, turn))
			doneEv := newEvent(EventRunDone, runID, turn)
			doneEv.Text = resp.Text()
			r.publish(ctx, doneEv)
			return Result{State: StateDone, FinalText: resp.Text(), Turns: turn, Usage: usage, Conversation: conv}
		}

		// Reasoning turn: the assistant asked for tools.
		r.publish(ctx, newEvent(EventTurnCompleted, runID, turn))

		// Suspension point: before the dispatch round begins.
		if ctx.Err() != nil {
			return abort(state)
		}
		state = StateExecutingTools

		results := r.registry.DispatchAll(ctx, calls, &DispatchObserver{
			Started: func(call llmclient.ToolCall) {
				ev := newEvent(EventToolCallStarted, runID, turn)
				ev.ToolName = call.Name
				ev.ToolCallID = call.ID
				r.publish(ctx, ev)
			},
			Finished: func(call llmclient.ToolCall, result ToolResult) {
				ev := newEvent(EventToolCallFinished, runID, turn)
				ev.ToolName = call.Name
				ev.ToolCallID = call.ID
				ev.Output = result.Output
				ev.DurationMs = result.DurationMs
				if result.Err != nil {
					ev.IsError = true
					ev.ErrorKind = string(result.Err.Kind)
					ev.Text = result.Err.Message
				}
				r.publish(ctx, ev)
			},
		})

		// The bus saw the full output above; the model gets a bounded copy.
		for i := range results {
			results[i].Output = TruncateToolOutput(results[i].Output, results[i].Name, r.charLimits, r.lineLimits)
		}
		if err := conv.AppendToolResults(results); err != nil {
			return fail(err)
		}
	}
}

// complete requests one completion, streaming token deltas onto the bus when
// streaming is enabled. Both paths return the same materialized response.
func (r *Runner) complete(ctx context.Context, runID string, turn int, conv *Conversation) (*llmclient.Response, error) {
	req := llmclient.Request{
		Model:    r.model,
		Provider: r.provider,
		Messages: conv.Messages(),
		Tools:    r.registry.Definitions(),
	}

	if !r.stream {
		return r.client.Complete(ctx, req)
	}

	events, err := r.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llmclient.Collect(events, func(ev llmclient.StreamEvent) {
		if ev.Type == llmclient.TextDelta && ev.Delta != "" {
			tokenEv := newEvent(EventTokenStreamed, runID, turn)
			tokenEv.Text = ev.Delta
			r.publish(ctx, tokenEv)
		}
	})
}

func (r *Runner) publish(ctx context.Context, ev AgentEvent) {
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.Debug("event publish interrupted", zap.Error(err))
	}
}

// errorKind extracts a stable kind label from a classified error for event
// consumers.
func errorKind(err error) string {
	var pe *llmclient.ProviderError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	var le *LoopError
	if errors.As(err, &le) {
		return string(le.Kind)
	}
	return "error"
}
