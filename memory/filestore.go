package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/petasbytes/go-memory-agent/internal/safety"
)

var _ Store = (*FileStore)(nil)

// FileStore is a local filesystem implementation of Store. Documents live
// under <baseDir>/memories and mirror the virtual namespace one to one.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger used for operation records.
func WithLogger(l *slog.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore creates (if needed) and opens the store rooted at
// <baseDir>/memories.
func NewFileStore(baseDir string, opts ...Option) (*FileStore, error) {
	s := &FileStore{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	root, err := safety.InitSandboxRoot(filepath.Join(baseDir, "memories"))
	if err != nil {
		return nil, fmt.Errorf("memory: init root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root %s: %w", root, err)
	}
	s.root = root
	s.logger.Info("memory store initialized", "root", root)
	return s, nil
}

// Root returns the resolved physical root directory.
func (s *FileStore) Root() string { return s.root }

// View lists a directory node or returns (a range of) a leaf's lines.
func (s *FileStore) View(ctx context.Context, path string, r *LineRange) (string, error) {
	const op = "view"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "view", "path", path, "range", r)

	full, err := s.resolve(op, path)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if isNotExist(err) {
			return "", s.fail(newError(KindNotFound, op, path, "Path %s does not exist", path))
		}
		return "", s.fail(ioError(op, path, err))
	}
	if fi.IsDir() {
		return s.list(op, path, full)
	}
	if !fi.Mode().IsRegular() {
		return "", s.fail(newError(KindNotFound, op, path, "Path %s is not a file", path))
	}

	b, err := os.ReadFile(full)
	if err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	lines := splitLines(string(b))
	if r != nil {
		var ok bool
		if lines, ok = selectRange(lines, *r); !ok {
			return "", s.fail(newError(KindRange, op, path, "Invalid view range [%d, %d] for %s", r.Start, r.End, path))
		}
	}
	s.logger.Debug("read file", "path", path, "lines", len(lines))
	return strings.Join(lines, "\n"), nil
}

// list returns the sorted, non-hidden immediate children of dir, one per
// line, with directories suffixed by "/".
func (s *FileStore) list(op, path, dir string) (string, error) {
	entries, err := os.ReadDir(dir) // sorted by name
	if err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	s.logger.Debug("listed directory", "path", path, "entries", len(names))
	return strings.Join(names, "\n"), nil
}

// Create writes a new leaf. It never overwrites.
func (s *FileStore) Create(ctx context.Context, path, text string) (string, error) {
	const op = "create"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "create", "path", path, "content_length", len(text))

	full, err := s.resolve(op, path)
	if err != nil {
		return "", err
	}
	if exists, err := s.exists(op, path, full); err != nil {
		return "", err
	} else if exists {
		return "", s.fail(newError(KindConflict, op, path, "File already exists: %s. Use str_replace or insert to modify.", path))
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	if err := writeFileAtomic(full, []byte(text), 0o644); err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	s.logger.Info("created memory file", "path", path)
	return fmt.Sprintf("Successfully created %s", path), nil
}

// StrReplace substitutes the single occurrence of oldStr with newStr.
func (s *FileStore) StrReplace(ctx context.Context, path, oldStr, newStr string) (string, error) {
	const op = "str_replace"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "str_replace", "path", path)

	full, err := s.resolve(op, path)
	if err != nil {
		return "", err
	}
	content, perm, err := s.readLeaf(op, path, full)
	if err != nil {
		return "", err
	}

	if oldStr == "" {
		return "", s.fail(newError(KindAmbiguous, op, path, "old_str must not be empty; it matches everywhere in %s", path))
	}
	switch n := strings.Count(content, oldStr); {
	case n == 0:
		return "", s.fail(newError(KindAmbiguous, op, path, "String not found in %s", path))
	case n > 1:
		return "", s.fail(newError(KindAmbiguous, op, path, "String appears %d times in %s. Must be unique.", n, path))
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := writeFileAtomic(full, []byte(updated), perm); err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	s.logger.Info("replaced string", "path", path)
	return fmt.Sprintf("Successfully replaced string in %s", path), nil
}

// Insert places text as line n (1-indexed), shifting later lines down.
func (s *FileStore) Insert(ctx context.Context, path string, line int, text string) (string, error) {
	const op = "insert"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "insert", "path", path, "line", line)

	full, err := s.resolve(op, path)
	if err != nil {
		return "", err
	}
	content, perm, err := s.readLeaf(op, path, full)
	if err != nil {
		return "", err
	}

	lines := splitKeepEnds(content)
	if line < 1 || line > len(lines)+1 {
		return "", s.fail(newError(KindRange, op, path, "Line %d is out of range for %s (file has %d lines)", line, path, len(lines)))
	}

	if err := writeFileAtomic(full, []byte(insertLine(lines, line, text)), perm); err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	s.logger.Info("inserted line", "path", path, "line", line)
	return fmt.Sprintf("Successfully inserted text at line %d in %s", line, path), nil
}

// Delete removes a leaf, or a directory node with all its descendants.
func (s *FileStore) Delete(ctx context.Context, path string) (string, error) {
	const op = "delete"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "delete", "path", path)

	full, err := s.resolve(op, path)
	if err != nil {
		return "", err
	}
	if full == s.root {
		return "", s.fail(newError(KindValidation, op, path, "Cannot delete the memory root %s; use clear-all instead", path))
	}
	fi, err := os.Lstat(full)
	if err != nil {
		if isNotExist(err) {
			return "", s.fail(newError(KindNotFound, op, path, "Path not found: %s", path))
		}
		return "", s.fail(ioError(op, path, err))
	}

	if fi.IsDir() {
		if err := os.RemoveAll(full); err != nil {
			return "", s.fail(ioError(op, path, err))
		}
		s.logger.Info("deleted directory", "path", path)
		return fmt.Sprintf("Successfully deleted directory %s", path), nil
	}
	if err := os.Remove(full); err != nil {
		return "", s.fail(ioError(op, path, err))
	}
	s.logger.Info("deleted file", "path", path)
	return fmt.Sprintf("Successfully deleted %s", path), nil
}

// Rename moves a leaf or directory node to a new, unused path.
func (s *FileStore) Rename(ctx context.Context, oldPath, newPath string) (string, error) {
	const op = "rename"
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "rename", "old_path", oldPath, "new_path", newPath)

	oldFull, err := s.resolve(op, oldPath)
	if err != nil {
		return "", err
	}
	newFull, err := s.resolve(op, newPath)
	if err != nil {
		return "", err
	}
	if oldFull == s.root {
		return "", s.fail(newError(KindValidation, op, oldPath, "Cannot rename the memory root %s", oldPath))
	}

	fi, err := os.Lstat(oldFull)
	if err != nil {
		if isNotExist(err) {
			return "", s.fail(newError(KindNotFound, op, oldPath, "File not found: %s", oldPath))
		}
		return "", s.fail(ioError(op, oldPath, err))
	}
	if exists, err := s.exists(op, newPath, newFull); err != nil {
		return "", err
	} else if exists {
		return "", s.fail(newError(KindConflict, op, newPath, "Destination already exists: %s", newPath))
	}
	if fi.IsDir() && within(oldFull, newFull) {
		return "", s.fail(newError(KindValidation, op, newPath, "Cannot move %s into itself (%s)", oldPath, newPath))
	}

	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return "", s.fail(ioError(op, newPath, err))
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return "", s.fail(ioError(op, oldPath, err))
	}
	s.logger.Info("renamed", "old_path", oldPath, "new_path", newPath)
	return fmt.Sprintf("Successfully renamed %s to %s", oldPath, newPath), nil
}

// ClearAll erases every document and recreates an empty root. Failures are
// reported in the returned message instead of an error.
func (s *FileStore) ClearAll(ctx context.Context) string {
	s.logger.WarnContext(ctx, "clearing all memories", "root", s.root)
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("Error clearing memories: %v", err)
	}
	if err := os.RemoveAll(s.root); err != nil {
		s.logger.Error("clear memories", "err", err)
		return fmt.Sprintf("Error clearing memories: %v", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		s.logger.Error("recreate memory root", "err", err)
		return fmt.Sprintf("Error clearing memories: %v", err)
	}
	s.logger.Info("all memories cleared")
	return "All memories have been cleared"
}

// resolve maps a virtual path to its physical location or a validation error.
// Paths that pass through a symlink anywhere below the root are rejected, so
// every document has exactly one virtual path.
func (s *FileStore) resolve(op, path string) (string, error) {
	full, err := safety.ResolveMountPath(s.root, MountPrefix, path)
	if err != nil {
		msg := err.Error()
		var te safety.ToolError
		if errors.As(err, &te) {
			msg = te.Message
		}
		return "", s.fail(&Error{Kind: KindValidation, Op: op, Path: path, Message: msg, Err: err})
	}
	lexical := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(path, MountPrefix)))
	if full != lexical {
		return "", s.fail(newError(KindValidation, op, path, "Path %s passes through a symbolic link", path))
	}
	if fi, err := os.Lstat(full); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		return "", s.fail(newError(KindValidation, op, path, "Path %s is a symbolic link", path))
	}
	return full, nil
}

// exists reports whether anything (leaf, directory or link) is at full.
func (s *FileStore) exists(op, path, full string) (bool, error) {
	_, err := os.Lstat(full)
	switch {
	case err == nil:
		return true, nil
	case isNotExist(err):
		return false, nil
	default:
		return false, s.fail(ioError(op, path, err))
	}
}

// readLeaf loads an existing regular file, returning its content and mode.
func (s *FileStore) readLeaf(op, path, full string) (string, fs.FileMode, error) {
	fi, err := os.Stat(full)
	if err != nil {
		if isNotExist(err) {
			return "", 0, s.fail(newError(KindNotFound, op, path, "File not found: %s", path))
		}
		return "", 0, s.fail(ioError(op, path, err))
	}
	if !fi.Mode().IsRegular() {
		return "", 0, s.fail(newError(KindNotFound, op, path, "File not found: %s (not a file)", path))
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", 0, s.fail(ioError(op, path, err))
	}
	return string(b), fi.Mode().Perm(), nil
}

// fail logs e at a level matching its kind and returns it.
func (s *FileStore) fail(e *Error) error {
	if e.Kind == KindIO {
		s.logger.Error("memory operation failed", "op", e.Op, "path", e.Path, "err", e.Err)
	} else {
		s.logger.Warn("memory operation rejected", "op", e.Op, "kind", string(e.Kind), "reason", e.Message)
	}
	return e
}

// isNotExist reports whether err means nothing is at the path. A path that
// continues below a leaf fails with ENOTDIR, which counts as absent.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// within reports whether p is dir or one of its descendants.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// writeFileAtomic writes data to a hidden temp file next to path and renames
// it into place, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } // best-effort

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename %s: %w", path, err)
	}
	return nil
}
