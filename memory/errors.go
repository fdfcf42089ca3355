package memory

import (
	"errors"
	"fmt"
)

// Kind classifies store failures. Its value doubles as the machine-readable
// code surfaced to the agent.
type Kind string

const (
	KindValidation Kind = "ERR_VALIDATION"
	KindNotFound   Kind = "ERR_NOT_FOUND"
	KindConflict   Kind = "ERR_CONFLICT"
	KindAmbiguous  Kind = "ERR_AMBIGUOUS_MATCH"
	KindRange      Kind = "ERR_OUT_OF_RANGE"
	KindIO         Kind = "ERR_IO"
)

// Sentinel errors matched by errors.Is against any *Error of the same kind.
var (
	// ErrValidation: path outside the mount, escaping the root, or misusing the root.
	ErrValidation = errors.New("memory: invalid path")

	// ErrNotFound: the document an operation requires does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrConflict: create or rename target already exists.
	ErrConflict = errors.New("memory: already exists")

	// ErrAmbiguousMatch: str_replace target occurs zero or several times.
	ErrAmbiguousMatch = errors.New("memory: ambiguous match")

	// ErrRange: line number or view range out of bounds.
	ErrRange = errors.New("memory: out of range")

	// ErrIO: underlying storage failure.
	ErrIO = errors.New("memory: storage failure")
)

var sentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindNotFound:   ErrNotFound,
	KindConflict:   ErrConflict,
	KindAmbiguous:  ErrAmbiguousMatch,
	KindRange:      ErrRange,
	KindIO:         ErrIO,
}

// Error is the typed failure returned by every Store operation.
type Error struct {
	Kind    Kind
	Op      string // operation name, e.g. "str_replace"
	Path    string // virtual path the failure refers to
	Message string // human-readable, names only the virtual path
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindIO {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or "" when err is not a store error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: fmt.Sprintf(format, args...)}
}

func ioError(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Message: fmt.Sprintf("Error in %s for %s", op, path), Err: err}
}
