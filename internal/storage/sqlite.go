package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using a single SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu        sync.Mutex
	snapshot  map[string]string // last state observed by this process
	listeners []Listener
}

// NewSQLiteStore opens (or creates) the options database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	snapshot, err := s.GetAll(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.snapshot = snapshot

	return s, nil
}

// initSchema creates the options table if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS options (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			modified TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subscribe registers a listener for storage changes.
func (s *SQLiteStore) Subscribe(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// GetAll returns every stored key and value.
func (s *SQLiteStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM options")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Set upserts values in one transaction and notifies listeners of the keys
// whose stored value actually changed.
func (s *SQLiteStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO options (key, value, modified) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified`,
			k, v, now,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store option %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return s.Rescan(ctx)
}

// Delete removes keys and notifies listeners.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM options WHERE key = ?", k); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return s.Rescan(ctx)
}

// Rescan re-reads the table and publishes the difference against the last
// observed snapshot. This picks up writes made by other processes.
func (s *SQLiteStore) Rescan(ctx context.Context) error {
	current, err := s.GetAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changes := Diff(s.snapshot, current)
	s.snapshot = current
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	for _, l := range listeners {
		l(changes)
	}
	return nil
}
