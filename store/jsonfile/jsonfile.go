/*
Package jsonfile stores the ledger document as one human-readable JSON file.

ATOMIC REPLACE:
  Save() writes a temp file in the same directory, syncs it and renames it
  over the target. Readers see the old or the new file, never a partial one.

CORRUPTION:
  A file that exists but does not decode is reported as
  *ledger.CorruptStateError. Quarantine() renames it to
  "<path>.corrupt-<timestamp>" so a fresh ledger can be written in its place
  without destroying the evidence.
*/
package jsonfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/stock-ledger/ledger"
)

// Store implements ledger.Store and ledger.Quarantiner on a single file.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the data file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (ledger.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Document{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Document{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ledger.Document{}, &ledger.CorruptStateError{Source: s.path, Err: errors.New("empty file")}
	}

	doc, err := ledger.DecodeDocument(bytes.NewReader(data))
	if err != nil {
		return ledger.Document{}, &ledger.CorruptStateError{Source: s.path, Err: err}
	}
	return doc, nil
}

func (s *Store) Save(_ context.Context, doc ledger.Document) error {
	var buf bytes.Buffer
	if err := ledger.EncodeDocument(&buf, doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	// CreateTemp uses 0600; keep the existing file's mode instead.
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Reset removes the data file. A missing file is not an error.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.path, err)
	}
	return nil
}

// Quarantine moves the current file aside and returns its new path.
func (s *Store) Quarantine(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102-150405"))
	if err := os.Rename(s.path, dst); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", s.path, err)
	}
	return dst, nil
}
