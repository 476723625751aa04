package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines file-affecting tools to a target directory. Every
// candidate path is resolved (relative joins, "..", symlinks) before the
// containment check, so a path that lexically sits under the root but
// resolves elsewhere is still rejected, with no I/O performed on it.
type Workspace struct {
	root string
}

// NewWorkspace creates a Workspace rooted at dir. The root itself is
// resolved to an absolute, symlink-free path up front.
func NewWorkspace(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", resolved)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the resolved root directory.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a tool-supplied path to an absolute path inside the root.
// Relative paths are joined to the root. A path whose resolution lands
// outside the root yields a path_escape ToolError.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		return w.root, nil
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", NewToolError(ToolErrExecution, "resolve %s: %v", path, err)
	}
	if !w.contains(resolved) {
		return "", NewToolError(ToolErrPathEscape, "path %s resolves outside the target directory %s", path, w.root)
	}
	return candidate, nil
}

func (w *Workspace) contains(path string) bool {
	if path == w.root {
		return true
	}
	return strings.HasPrefix(path, w.root+string(filepath.Separator))
}

// resolveExisting resolves symlinks for the deepest existing ancestor of
// path, then rejoins the non-existent remainder. New files that don't exist
// yet still get their parent chain checked.
func resolveExisting(path string) (string, error) {
	var tail []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}
