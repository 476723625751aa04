package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a shell command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// GrepOptions configures grep behavior.
type GrepOptions struct {
	GlobFilter      string `json:"glob_filter,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// Environment abstracts where tool operations run. Implementations enforce
// path confinement: every path-taking operation rejects paths that resolve
// outside the target directory before touching the filesystem.
type Environment interface {
	ReadFile(path string, offset, limit int) (string, error)
	WriteFile(path string, content string) error
	ListDirectory(path string) ([]DirEntry, error)
	Glob(pattern string, path string) ([]string, error)
	Grep(ctx context.Context, pattern string, path string, options GrepOptions) (string, error)
	ExecCommand(ctx context.Context, command string, timeoutMs int) (*ExecResult, error)

	WorkingDirectory() string
	Platform() string
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables that are excluded from subprocess environments.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns the process environment minus credential-bearing
// variables, so subprocesses spawned for the model never see API keys.
func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := parts[0]
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalEnvironment runs tools on the local machine, confined to a Workspace.
type LocalEnvironment struct {
	workspace *Workspace
	platform  string
}

// NewLocalEnvironment creates a local environment confined to the workspace.
func NewLocalEnvironment(workspace *Workspace) *LocalEnvironment {
	return &LocalEnvironment{
		workspace: workspace,
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (e *LocalEnvironment) WorkingDirectory() string { return e.workspace.Root() }

func (e *LocalEnvironment) Platform() string { return e.platform }

// ReadFile reads a file, formatting content with 1-based line numbers.
// offset is the first line to include (1-based); limit caps the line count.
func (e *LocalEnvironment) ReadFile(path string, offset, limit int) (string, error) {
	resolved, err := e.workspace.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	startLine := 0
	if offset > 0 {
		startLine = offset - 1
	}
	if startLine >= len(lines) {
		return "", nil
	}
	endLine := len(lines)
	if limit > 0 && startLine+limit < endLine {
		endLine = startLine + limit
	}

	var sb strings.Builder
	for i := startLine; i < endLine; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile writes content, creating parent directories as needed.
func (e *LocalEnvironment) WriteFile(path string, content string) error {
	resolved, err := e.workspace.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("write_file: create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return nil
}

// ListDirectory lists entries sorted by name, directories first.
func (e *LocalEnvironment) ListDirectory(path string) ([]DirEntry, error) {
	resolved, err := e.workspace.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list_directory: %w", err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IsDir != result[j].IsDir {
			return result[i].IsDir
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// Glob matches files under the workspace, returning workspace-relative
// paths. Both the pattern and every match are held to the containment rule:
// a pattern that steps out of the search directory with ".." is rejected
// before any filesystem access, and matches that resolve outside the root
// (symlinked entries) are dropped.
func (e *LocalEnvironment) Glob(pattern string, path string) ([]string, error) {
	resolved, err := e.workspace.Resolve(path)
	if err != nil {
		return nil, err
	}
	joined := filepath.Join(resolved, pattern)
	if !e.workspace.contains(joined) {
		return nil, NewToolError(ToolErrPathEscape,
			"pattern %s resolves outside the target directory %s", pattern, e.workspace.Root())
	}
	matches, err := filepath.Glob(joined)
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	root := e.workspace.Root()
	result := make([]string, 0, len(matches))
	for _, m := range matches {
		real, rerr := resolveExisting(m)
		if rerr != nil || !e.workspace.contains(real) {
			continue
		}
		if rel, err := filepath.Rel(root, m); err == nil {
			result = append(result, rel)
		} else {
			result = append(result, m)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Grep searches file contents, preferring ripgrep with a grep fallback.
func (e *LocalEnvironment) Grep(ctx context.Context, pattern string, path string, options GrepOptions) (string, error) {
	resolved, err := e.workspace.Resolve(path)
	if err != nil {
		return "", err
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return e.grepFallback(ctx, pattern, resolved, options)
	}

	args := []string{pattern, resolved, "--line-number", "--no-heading"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.GlobFilter != "" {
		args = append(args, "--glob", options.GlobFilter)
	}
	if options.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", options.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rgPath, args...)
	cmd.Dir = e.workspace.Root()
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // rg exits 1 for no matches
	return stdout.String(), nil
}

func (e *LocalEnvironment) grepFallback(ctx context.Context, pattern string, path string, options GrepOptions) (string, error) {
	args := []string{"-rn", pattern, path}
	if options.CaseInsensitive {
		args = append([]string{"-i"}, args...)
	}

	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = e.workspace.Root()
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}

// ExecCommand runs a shell command in the workspace with a wall-clock
// timeout. On timeout the whole process group is killed and the partial
// captured output is returned with TimedOut set.
func (e *LocalEnvironment) ExecCommand(ctx context.Context, command string, timeoutMs int) (*ExecResult, error) {
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workspace.Root()
	// Process group so a timeout kills the command's children too, not just
	// the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// A child that escaped the group (setsid) can hold the output pipes open
	// past the kill; stop waiting on them after a short grace so the timeout
	// stays wall-clock.
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = filterEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else if errors.Is(err, exec.ErrWaitDelay) {
			// The command exited but an orphaned child kept the pipes open;
			// output up to the cutoff was captured.
		} else {
			return nil, fmt.Errorf("run_shell_command: %w", err)
		}
	}
	return result, nil
}
