package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimit(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("expected passthrough, got %q", out)
	}
}

func TestTruncateOutputHeadTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 200, TruncateHeadTail)
	if !strings.HasPrefix(out, strings.Repeat("a", 100)) {
		t.Error("expected head preserved")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("expected tail preserved")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("expected truncation marker")
	}
}

func TestTruncateOutputTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)
	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("expected tail preserved")
	}
	if strings.Contains(out, "a") && !strings.Contains(out, "truncated") {
		t.Error("expected truncation marker")
	}
}

func TestTruncateLines(t *testing.T) {
	input := strings.TrimSuffix(strings.Repeat("line\n", 100), "\n")
	out := TruncateLines(input, 10)
	if !strings.Contains(out, "lines omitted") {
		t.Error("expected omission marker")
	}
	if count := strings.Count(out, "line"); count > 11 {
		t.Errorf("expected at most ~10 lines kept, got %d", count)
	}
}

func TestTruncateToolOutputPerToolLimits(t *testing.T) {
	big := strings.Repeat("x", 5000)
	out := TruncateToolOutput(big, "write_file", map[string]int{"write_file": 1000}, nil)
	if len(out) >= 5000 {
		t.Error("expected output truncated by per-tool limit")
	}

	// Unknown tool falls back to the default cap and passes through when
	// under it.
	out = TruncateToolOutput("tiny", "unknown_tool", nil, nil)
	if out != "tiny" {
		t.Errorf("expected passthrough, got %q", out)
	}
}
