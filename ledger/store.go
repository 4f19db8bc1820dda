/*
store.go - Persistence interface for the ledger document

PURPOSE:
  Defines the boundary between the Recorder and durable storage. A Store
  persists the whole Document (state + history) on every accepted change.

WHOLE-DOCUMENT REPLACE:
  Save() always receives the complete document and replaces what was there.
  There is no incremental append: a saved document is self-consistent on its
  own, and retrying a failed Save is idempotent.

OPTIONAL CAPABILITIES:
  Quarantiner: stores that can set a corrupt document aside before the
  Recorder reinitializes (jsonfile renames the file).

IMPLEMENTATIONS:
  - store/jsonfile: Whole-file JSON (the canonical format, see encode.go)
  - store/sqlite:   SQLite tables holding the same document
  - ledger/store:   In-memory for tests
*/
package ledger

import "context"

// Document is everything a Store persists.
type Document struct {
	State   State
	History []Entry // newest first

	// EmployeesUnset is set by DecodeDocument when the document records no
	// team size; Open then applies the configured default.
	EmployeesUnset bool
}

// Store persists the ledger document.
type Store interface {
	// Load returns the persisted document.
	// Returns ErrNotFound when nothing was saved yet and a
	// *CorruptStateError when the stored data cannot be decoded.
	Load(ctx context.Context) (Document, error)

	// Save replaces the persisted document.
	Save(ctx context.Context, doc Document) error

	// Reset discards the persisted document.
	Reset(ctx context.Context) error
}

// Quarantiner is implemented by stores that can move a corrupt document out
// of the way, returning where it went.
type Quarantiner interface {
	Quarantine(ctx context.Context) (string, error)
}
