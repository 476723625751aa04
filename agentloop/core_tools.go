package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RegisterCoreTools registers the built-in tool set on a Registry. The tools
// delegate all I/O to the Environment, which enforces path confinement.
func RegisterCoreTools(reg *Registry, env Environment, defaultTimeoutMs, maxTimeoutMs int) error {
	for _, register := range []func() error{
		func() error { return registerReadFile(reg, env) },
		func() error { return registerWriteFile(reg, env) },
		func() error { return registerListDirectory(reg, env) },
		func() error { return registerGlob(reg, env) },
		func() error { return registerGrep(reg, env) },
		func() error { return registerShell(reg, env, defaultTimeoutMs, maxTimeoutMs) },
	} {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

func registerReadFile(reg *Registry, env Environment) error {
	return reg.Register(Tool{
		Name:        "read_file",
		Description: "Read a file from the target directory. Returns line-numbered content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file, absolute or relative to the target directory.",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "1-based line number to start reading from.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of lines to read. Default: 2000.",
				},
			},
			"required": []string{"file_path"},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			filePath, _ := GetStringArg(args, "file_path")
			offset, _ := GetIntArg(args, "offset")
			limit, _ := GetIntArg(args, "limit")
			if limit == 0 {
				limit = 2000
			}
			return env.ReadFile(filePath, offset, limit)
		},
	})
}

func registerWriteFile(reg *Registry, env Environment) error {
	return reg.Register(Tool{
		Name:        "write_file",
		Description: "Write content to a file in the target directory. Creates the file and parent directories if needed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to write to, absolute or relative to the target directory.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The full file content to write.",
				},
			},
			"required": []string{"file_path", "content"},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			filePath, _ := GetStringArg(args, "file_path")
			content, _ := GetStringArg(args, "content")
			if err := env.WriteFile(filePath, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), filePath), nil
		},
	})
}

func registerListDirectory(reg *Registry, env Environment) error {
	return reg.Register(Tool{
		Name:        "list_directory",
		Description: "List the entries of a directory in the target directory. Directories are suffixed with '/'.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list. Default: the target directory itself.",
				},
			},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")
			entries, err := env.ListDirectory(path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "The directory is empty.", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			return sb.String(), nil
		},
	})
}

func registerGlob(reg *Registry, env Environment) error {
	return reg.Register(Tool{
		Name:        "glob",
		Description: "Find files matching a glob pattern under the target directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern (e.g., \"*.go\").",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Base directory. Default: the target directory.",
				},
			},
			"required": []string{"pattern"},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, _ := GetStringArg(args, "pattern")
			path, _ := GetStringArg(args, "path")
			matches, err := env.Glob(pattern, path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func registerGrep(reg *Registry, env Environment) error {
	return reg.Register(Tool{
		Name:        "grep",
		Description: "Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Regex pattern to search for.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory or file to search. Default: the target directory.",
				},
				"glob_filter": map[string]any{
					"type":        "string",
					"description": "File pattern filter (e.g., \"*.go\").",
				},
				"case_insensitive": map[string]any{
					"type":        "boolean",
					"description": "Case insensitive search. Default: false.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results. Default: 100.",
				},
			},
			"required": []string{"pattern"},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, _ := GetStringArg(args, "pattern")
			path, _ := GetStringArg(args, "path")
			globFilter, _ := GetStringArg(args, "glob_filter")
			caseInsensitive, _ := GetBoolArg(args, "case_insensitive")
			maxResults, _ := GetIntArg(args, "max_results")
			if maxResults <= 0 {
				maxResults = 100
			}
			return env.Grep(ctx, pattern, path, GrepOptions{
				GlobFilter:      globFilter,
				CaseInsensitive: caseInsensitive,
				MaxResults:      maxResults,
			})
		},
	})
}

func registerShell(reg *Registry, env Environment, defaultTimeoutMs, maxTimeoutMs int) error {
	return reg.Register(Tool{
		Name:        "run_shell_command",
		Description: "Execute a shell command in the target directory. Returns stdout, stderr, and exit code.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The command to run.",
				},
				"timeout_ms": map[string]any{
					"type":        "integer",
					"description": "Override the default command timeout in milliseconds.",
				},
			},
			"required": []string{"command"},
		},
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			command, _ := GetStringArg(args, "command")
			timeoutMs, _ := GetIntArg(args, "timeout_ms")
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			if maxTimeoutMs > 0 && timeoutMs > maxTimeoutMs {
				timeoutMs = maxTimeoutMs
			}

			result, err := env.ExecCommand(ctx, command, timeoutMs)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				// Partial output rides along with the classified error so the
				// model sees what the command produced before the limit hit.
				return result.Output(), NewToolError(ToolErrTimeout,
					"command timed out after %dms", timeoutMs)
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	})
}
