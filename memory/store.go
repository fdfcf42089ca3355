package memory

import "context"

// MountPrefix is the virtual namespace every document path lives under.
const MountPrefix = "/memories"

// LineRange selects an inclusive, 1-indexed window of lines.
// End == -1 reads to the end of the document.
type LineRange struct {
	Start int
	End   int
}

// Store is the capability set an agent uses to manage its memories.
// Every method validates the virtual path before touching storage and
// returns a confirmation (or content) string on success and an *Error
// otherwise. ClearAll never fails; it reports problems in its message.
type Store interface {
	View(ctx context.Context, path string, r *LineRange) (string, error)
	Create(ctx context.Context, path, text string) (string, error)
	StrReplace(ctx context.Context, path, oldStr, newStr string) (string, error)
	Insert(ctx context.Context, path string, line int, text string) (string, error)
	Delete(ctx context.Context, path string) (string, error)
	Rename(ctx context.Context, oldPath, newPath string) (string, error)
	ClearAll(ctx context.Context) string
}
