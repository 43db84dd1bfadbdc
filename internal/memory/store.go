// Package memory provides the durable key/value store behind the
// /api/memory endpoints.
package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS memory (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	meta TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// ErrNotFound reports a lookup for a key with no stored record.
var ErrNotFound = errors.New("key not found")

// Record is one stored row. Value and Meta hold the JSON exactly as
// persisted.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Meta      json.RawMessage `json:"meta"`
	UpdatedAt string          `json:"updated_at"`
}

// Store is a single-table key/value store over SQLite. One handle is
// held for the process lifetime and writes are serialized through one
// mutex, so concurrent puts to the same key are last-write-wins.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the store at path. Schema creation is
// idempotent and safe against a pre-existing store file.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts a record. A second put for the same key fully replaces
// value, meta and timestamp; no history is kept. Meta defaults to an
// empty object. The timestamp is UTC at second precision with a
// literal Z suffix.
func (s *Store) Put(key string, value, meta json.RawMessage) (Record, error) {
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	updated := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO memory (key, value, meta, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, meta = excluded.meta, updated_at = excluded.updated_at`,
		key, string(value), string(meta), updated)
	if err != nil {
		return Record{}, fmt.Errorf("put %q: %w", key, err)
	}
	return Record{Key: key, Value: value, Meta: meta, UpdatedAt: updated}, nil
}

// Get returns the record stored under key, or ErrNotFound.
func (s *Store) Get(key string) (Record, error) {
	var value, meta, updated string
	err := s.db.QueryRow(`SELECT value, meta, updated_at FROM memory WHERE key = ?`, key).
		Scan(&value, &meta, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", key, err)
	}
	return Record{
		Key:       key,
		Value:     json.RawMessage(value),
		Meta:      json.RawMessage(meta),
		UpdatedAt: updated,
	}, nil
}
