/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Holds the same document as the JSON file (live state + newest-first
  history) in two tables, for deployments that prefer a database file.

KEY TABLES:
  ledger_state: Single row (id = 1) with the encoded "ledger" object
  history:      One row per entry; seq 0 is the newest

WHOLE-DOCUMENT REPLACE:
  Save() rewrites both tables inside one transaction, so a crash leaves
  either the previous or the new document, never a mix.

ENCODING:
  Rows hold the same JSON the file format uses (ledger.MarshalState /
  ledger.MarshalEntry), so a document moves between backends unchanged.
  Rows that fail to decode surface as *ledger.CorruptStateError.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of the Recorder's own lock.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  rec, err := ledger.Open(ctx, st, ledger.Options{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/stock-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Live figures, one row
	CREATE TABLE IF NOT EXISTS ledger_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- History, newest first by seq
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		row_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_kind
		ON history(kind);
	CREATE INDEX IF NOT EXISTS idx_history_recorded_at
		ON history(recorded_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// Load reads the document. Returns ledger.ErrNotFound when no state row
// exists yet.
func (s *Store) Load(ctx context.Context) (ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stateJSON string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM ledger_state WHERE id = 1`).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Document{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Document{}, fmt.Errorf("failed to load state: %w", err)
	}

	state, err := ledger.UnmarshalState([]byte(stateJSON))
	if err != nil {
		return ledger.Document{}, s.corrupt(err)
	}
	doc := ledger.Document{State: state}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, row_json FROM history ORDER BY seq ASC`)
	if err != nil {
		return ledger.Document{}, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int
		var rowJSON string
		if err := rows.Scan(&seq, &rowJSON); err != nil {
			return ledger.Document{}, fmt.Errorf("failed to scan history: %w", err)
		}
		entry, err := ledger.UnmarshalEntry([]byte(rowJSON))
		if err != nil {
			return ledger.Document{}, s.corrupt(fmt.Errorf("history seq %d: %w", seq, err))
		}
		doc.History = append(doc.History, entry)
	}
	if err := rows.Err(); err != nil {
		return ledger.Document{}, fmt.Errorf("failed to load history: %w", err)
	}

	return doc, nil
}

// Save replaces the stored document atomically.
func (s *Store) Save(ctx context.Context, doc ledger.Document) error {
	stateJSON, err := ledger.MarshalState(doc.State)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_state (id, state_json, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at
		`, string(stateJSON), now); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO history (seq, id, kind, recorded_at, row_json)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare history insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range doc.History {
			rowJSON, err := ledger.MarshalEntry(e)
			if err != nil {
				return err
			}
			meta := e.Meta()
			if _, err := stmt.ExecContext(ctx,
				i,
				meta.ID,
				string(e.Kind()),
				meta.At.Format(time.RFC3339),
				string(rowJSON),
			); err != nil {
				return fmt.Errorf("failed to save history entry %s: %w", meta.ID, err)
			}
		}
		return nil
	})
}

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"history", "ledger_state"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// UTILITIES
// =============================================================================

// CountByKind returns how many history entries of each kind are stored.
func (s *Store) CountByKind(ctx context.Context) (map[ledger.Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM history GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[ledger.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[ledger.Kind(kind)] = n
	}
	return counts, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) corrupt(err error) error {
	return &ledger.CorruptStateError{Source: "sqlite:" + s.path, Err: err}
}
