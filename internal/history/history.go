// Package history stores user accounts and per-user search history.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrUserExists is returned by RegisterUser for a taken username.
var ErrUserExists = errors.New("username already exists")

// ErrInvalidCredentials is returned for empty usernames or passwords.
var ErrInvalidCredentials = errors.New("username and password are required")

// DefaultRecentLimit is the number of history rows returned by default.
const DefaultRecentLimit = 5

// Credentials verifies and registers users.
type Credentials interface {
	RegisterUser(ctx context.Context, username, password string) error
	IsValidUser(ctx context.Context, username, password string) (bool, error)
}

// History records what a user looked up. Recording the same movie or genre
// again moves it to the front instead of adding a second row.
type History interface {
	RecordSearch(ctx context.Context, username string, movieID int, title string) error
	RecentSearches(ctx context.Context, username string, limit int) ([]Search, error)
	RecordGenreSearch(ctx context.Context, username, genre string) error
	RecentGenreSearches(ctx context.Context, username string, limit int) ([]GenreSearch, error)
}

// Search is one remembered movie lookup.
type Search struct {
	MovieID    int       `json:"movie_id"`
	Title      string    `json:"title"`
	SearchedAt time.Time `json:"searched_at"`
}

// GenreSearch is one remembered genre lookup.
type GenreSearch struct {
	Genre      string    `json:"genre"`
	SearchedAt time.Time `json:"searched_at"`
}
