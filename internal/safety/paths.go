// Package safety provides helpers for sandboxed file access.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error codes carried by ToolError.
const (
	CodeOutsideSandbox = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeBadPrefix      = "ERR_PATH_PREFIX"
)

// ToolError is a machine-readable error body for surfacing back to the agent as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool_result payloads small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// InitSandboxRoot resolves root to an absolute, symlink-free directory path.
// An empty root defaults to the current working directory. The directory is
// not created here.
func InitSandboxRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(root): %w", err)
	}

	// Resolve symlinks where possible so future boundary checks are reliable.
	// If the root does not exist yet, resolve its deepest existing ancestor.
	return resolveExisting(abs), nil
}

// ValidateRelPath resolves relPath against absRoot and returns an absolute path
// inside the sandbox. absRoot must already be resolved (see InitSandboxRoot).
// It rejects absolute inputs, parent traversal and symlink escapes. Symlinks
// in parent directories are canonicalised; the final component is kept as
// named (lstat semantics), though a symlinked leaf must still point inside
// the sandbox. On violation, returns a ToolError.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	// Reject absolute inputs early
	if filepath.IsAbs(relPath) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}

	cleaned := filepath.Clean(relPath)
	if cleaned == "" || cleaned == "." {
		return absRoot, nil
	}

	joined := filepath.Join(absRoot, cleaned)
	candidate := filepath.Join(resolveExisting(filepath.Dir(joined)), filepath.Base(joined))
	if !inside(absRoot, candidate) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	}
	if target, err := filepath.EvalSymlinks(candidate); err == nil && !inside(absRoot, target) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "requested path links outside the sandbox root"}
	}
	return candidate, nil
}

// inside reports whether p is absRoot or below it. filepath.Rel is robust
// against partial prefix matches.
func inside(absRoot, p string) bool {
	rel, err := filepath.Rel(absRoot, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ResolveMountPath maps a virtual path under mount (e.g. "/memories/a/b.txt")
// to a validated physical path under absRoot. The mount must be followed by
// "/" or end the path; "/memoriesX" is not under "/memories".
func ResolveMountPath(absRoot, mount, vpath string) (string, error) {
	rest, ok := strings.CutPrefix(vpath, mount)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return "", ToolError{Code: CodeBadPrefix, Message: fmt.Sprintf("path must start with %s, got: %s", mount, vpath)}
	}
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		return absRoot, nil
	}
	p, err := ValidateRelPath(absRoot, filepath.FromSlash(rest))
	if err != nil {
		return "", ToolError{Code: CodeOutsideSandbox, Message: fmt.Sprintf("path %s would escape %s directory", vpath, mount)}
	}
	return p, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p and
// rejoins the non-existent tail. This reveals escapes through a symlinked
// ancestor even when the leaf (or several levels above it) does not exist yet.
func resolveExisting(p string) string {
	var tail []string
	cur := p
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, tail...)
			return filepath.Join(parts...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
