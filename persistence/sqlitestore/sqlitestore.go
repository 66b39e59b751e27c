// Package sqlitestore provides SQLite-based persistence for the registry cache.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bpowers/go-modelcontext/persistence"
)

// SQLiteStore implements persistence.Cache using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ persistence.Cache = (*SQLiteStore)(nil)

// New creates a new SQLite-based store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS entries (
    name        TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  DATETIME NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// Get implements persistence.Cache.
func (s *SQLiteStore) Get(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM entries WHERE name = ?`, name).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query entry: %w", err)
	}
	return value, true, nil
}

// Put implements persistence.Cache.
func (s *SQLiteStore) Put(name, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO entries (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		name, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Delete implements persistence.Cache.
func (s *SQLiteStore) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Names implements persistence.Cache.
func (s *SQLiteStore) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM entries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}

	return names, nil
}

// UpdatedAt returns when the named record was last written.
func (s *SQLiteStore) UpdatedAt(name string) (time.Time, error) {
	var updated time.Time
	err := s.db.QueryRow(`SELECT updated_at FROM entries WHERE name = ?`, name).Scan(&updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, fmt.Errorf("entry not found: %s", name)
		}
		return time.Time{}, fmt.Errorf("query entry: %w", err)
	}
	return updated, nil
}

// Close implements persistence.Cache.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
