// Package memory implements a sandboxed, file-backed store of small text
// documents addressed by virtual paths under the /memories mount.
//
// Model:
//   - A document is either a directory node or a leaf holding UTF-8 text.
//   - Every virtual path resolves to exactly one physical path under the
//     store root; resolution rejects anything that escapes the root.
//   - Preconditions are checked before any mutation, so a failed call leaves
//     the store as it was.
//
// The store assumes a single writer. It does not lock across operations.
package memory
