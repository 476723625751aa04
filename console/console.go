// Package console renders agent run progress to a terminal. It is a passive
// event bus consumer: it observes published events and never touches the
// loop's internal state.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dirigent-dev/dirigent/agentloop"
)

var (
	turnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))
)

// Console renders AgentEvents to a writer.
type Console struct {
	out       io.Writer
	debug     bool
	streaming bool // true while token deltas are being printed inline
	sawTokens bool // any deltas printed during the current turn
}

// New creates a Console writing to out. With debug enabled, tool output
// snippets and token usage are included.
func New(out io.Writer, debug bool) *Console {
	return &Console{out: out, debug: debug}
}

// Consume drains the subscription channel, rendering each event. It returns
// when the channel is closed, so it is typically run in its own goroutine
// with the bus closed after the run finishes.
func (c *Console) Consume(events <-chan agentloop.AgentEvent) {
	for ev := range events {
		c.render(ev)
	}
	c.endStream()
}

func (c *Console) render(ev agentloop.AgentEvent) {
	switch ev.Kind {
	case agentloop.EventTurnStarted:
		c.endStream()
		c.sawTokens = false
		fmt.Fprintln(c.out, turnStyle.Render(fmt.Sprintf("── turn %d ──", ev.Turn)))

	case agentloop.EventTokenStreamed:
		c.streaming = true
		c.sawTokens = true
		fmt.Fprint(c.out, ev.Text)

	case agentloop.EventToolCallStarted:
		c.endStream()
		fmt.Fprintf(c.out, "%s %s\n", toolStyle.Render("▸ "+ev.ToolName), dimStyle.Render(ev.ToolCallID))

	case agentloop.EventToolCallFinished:
		c.endStream()
		status := okStyle.Render("✓")
		if ev.IsError {
			status = errStyle.Render("✗ " + ev.ErrorKind)
		}
		fmt.Fprintf(c.out, "%s %s %s\n", status, toolStyle.Render(ev.ToolName),
			dimStyle.Render(fmt.Sprintf("(%dms)", ev.DurationMs)))
		if c.debug && ev.Output != "" {
			fmt.Fprintln(c.out, dimStyle.Render(indent(snippet(ev.Output, 6), "  ")))
		}
		if ev.IsError && ev.Text != "" {
			fmt.Fprintln(c.out, errStyle.Render(indent(ev.Text, "  ")))
		}

	case agentloop.EventTokenUsage:
		if c.debug && ev.Usage != nil {
			fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("tokens: %d in / %d out / %d total",
				ev.Usage.InputTokens, ev.Usage.OutputTokens, ev.Usage.TotalTokens)))
		}

	case agentloop.EventRunDone:
		c.endStream()
		fmt.Fprintln(c.out, okStyle.Render("✓ done"))
		if ev.Text != "" && !c.sawTokens {
			// Without streaming the final answer has not been printed yet.
			fmt.Fprintln(c.out, ev.Text)
		}

	case agentloop.EventRunFailed:
		c.endStream()
		fmt.Fprintf(c.out, "%s %s\n",
			errStyle.Render("✗ run failed ["+ev.ErrorKind+"]"),
			dimStyle.Render(fmt.Sprintf("after turn %d", ev.Turn)))
		if ev.Text != "" {
			fmt.Fprintln(c.out, errStyle.Render(indent(ev.Text, "  ")))
		}
	}
}

// endStream terminates an inline token run with a newline before printing a
// block-level line.
func (c *Console) endStream() {
	if c.streaming {
		fmt.Fprintln(c.out)
		c.streaming = false
	}
}

func snippet(s string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") +
		fmt.Sprintf("\n… (%d more lines)", len(lines)-maxLines)
}

func indent(s string, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
