package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// DB is the SQLite implementation of Credentials and History.
type DB struct {
	db  *sql.DB
	now func() time.Time

	// bcryptCost is lowered in tests.
	bcryptCost int
}

var (
	_ Credentials = (*DB)(nil)
	_ History     = (*DB)(nil)
)

// OpenDB opens or creates the history database at path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db, now: time.Now, bcryptCost: bcrypt.DefaultCost}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS search_history (
			username TEXT NOT NULL,
			movie_id INTEGER NOT NULL,
			movie_title TEXT NOT NULL,
			searched_at INTEGER NOT NULL,
			PRIMARY KEY (username, movie_id)
		);
		CREATE INDEX IF NOT EXISTS idx_search_history_recent
			ON search_history(username, searched_at DESC);

		CREATE TABLE IF NOT EXISTS genre_search_history (
			username TEXT NOT NULL,
			genre TEXT NOT NULL,
			searched_at INTEGER NOT NULL,
			PRIMARY KEY (username, genre)
		);
		CREATE INDEX IF NOT EXISTS idx_genre_search_history_recent
			ON genre_search_history(username, searched_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// RegisterUser stores a bcrypt hash of password for a new username.
func (d *DB) RegisterUser(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username, string(hash), d.now().UnixNano())
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	if n == 0 {
		return ErrUserExists
	}
	return nil
}

// IsValidUser reports whether password matches the stored hash. Unknown
// users are not an error.
func (d *DB) IsValidUser(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := d.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE username = ?",
		strings.TrimSpace(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("comparing password: %w", err)
	}
	return true, nil
}

// RecordSearch remembers that username looked at movieID.
func (d *DB) RecordSearch(ctx context.Context, username string, movieID int, title string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO search_history (username, movie_id, movie_title, searched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(username, movie_id) DO UPDATE SET searched_at = excluded.searched_at`,
		username, movieID, title, d.now().UnixNano())
	if err != nil {
		return fmt.Errorf("recording search: %w", err)
	}
	return nil
}

// RecentSearches returns the newest searches first.
func (d *DB) RecentSearches(ctx context.Context, username string, limit int) ([]Search, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT movie_id, movie_title, searched_at FROM search_history
		 WHERE username = ? ORDER BY searched_at DESC LIMIT ?`,
		username, limit)
	if err != nil {
		return nil, fmt.Errorf("querying searches: %w", err)
	}
	defer rows.Close()

	out := []Search{}
	for rows.Next() {
		var s Search
		var at int64
		if err := rows.Scan(&s.MovieID, &s.Title, &at); err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		s.SearchedAt = time.Unix(0, at).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordGenreSearch remembers that username browsed genre.
func (d *DB) RecordGenreSearch(ctx context.Context, username, genre string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO genre_search_history (username, genre, searched_at) VALUES (?, ?, ?)
		 ON CONFLICT(username, genre) DO UPDATE SET searched_at = excluded.searched_at`,
		username, genre, d.now().UnixNano())
	if err != nil {
		return fmt.Errorf("recording genre search: %w", err)
	}
	return nil
}

// RecentGenreSearches returns the newest genre searches first.
func (d *DB) RecentGenreSearches(ctx context.Context, username string, limit int) ([]GenreSearch, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT genre, searched_at FROM genre_search_history
		 WHERE username = ? ORDER BY searched_at DESC LIMIT ?`,
		username, limit)
	if err != nil {
		return nil, fmt.Errorf("querying genre searches: %w", err)
	}
	defer rows.Close()

	out := []GenreSearch{}
	for rows.Next() {
		var g GenreSearch
		var at int64
		if err := rows.Scan(&g.Genre, &at); err != nil {
			return nil, fmt.Errorf("scanning genre search: %w", err)
		}
		g.SearchedAt = time.Unix(0, at).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}
