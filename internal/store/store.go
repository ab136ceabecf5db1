// Package store persists whole documents (catalog JSON, guide XML) in a
// single SQLite file keyed by name. Every write replaces the full document
// in one statement, so readers never observe a partial update.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Document keys used by the pipeline.
const (
	KeyCatalog = "catalog"
	KeyGuide   = "guide"
)

// ErrNotFound is returned by Get for absent documents.
var ErrNotFound = errors.New("document not found")

// Store is a key-value document store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put replaces the document stored under key.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store put %q: %w", key, err)
	}
	return nil
}

// Get returns the document stored under key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM documents WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store get %q: %w", key, err)
	}
	return value, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
