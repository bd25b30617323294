package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite for persistence.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file and table are auto-created if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS metadata_cache (
			cache_key TEXT PRIMARY KEY,
			record_json BLOB NOT NULL,
			cached_at DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves data from the store by key.
func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT record_json FROM metadata_cache WHERE cache_key = ?",
		key,
	).Scan(&data)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores data under key.
func (s *SQLiteStore) Set(key string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO metadata_cache (cache_key, record_json, cached_at)
		 VALUES (?, ?, ?)`,
		key, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Len returns the number of rows in the cache table.
func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM metadata_cache").Scan(&n); err != nil {
		return 0
	}
	return n
}

// Clear removes all entries from the cache.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM metadata_cache"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
