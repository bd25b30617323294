package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	db.bcryptCost = bcrypt.MinCost

	// Deterministic, strictly increasing timestamps.
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.RegisterUser(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if err := db.RegisterUser(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate RegisterUser() error = %v, want ErrUserExists", err)
	}
	if err := db.RegisterUser(ctx, " ", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("RegisterUser(blank) error = %v, want ErrInvalidCredentials", err)
	}

	tests := []struct {
		name     string
		user     string
		password string
		want     bool
	}{
		{"correct", "alice", "s3cret", true},
		{"wrong password", "alice", "nope", false},
		{"unknown user", "bob", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.IsValidUser(ctx, tt.user, tt.password)
			if err != nil {
				t.Fatalf("IsValidUser() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsValidUser(%q, %q) = %v, want %v", tt.user, tt.password, got, tt.want)
			}
		})
	}
}

func TestRecentSearches_UpsertAndOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, s := range []struct {
		id    int
		title string
	}{
		{19995, "Avatar"},
		{603, "The Matrix"},
		{19995, "Avatar"},
		{155, "The Dark Knight"},
	} {
		if err := db.RecordSearch(ctx, "alice", s.id, s.title); err != nil {
			t.Fatalf("RecordSearch() error = %v", err)
		}
	}
	db.RecordSearch(ctx, "bob", 1, "Other")

	got, err := db.RecentSearches(ctx, "alice", 5)
	if err != nil {
		t.Fatalf("RecentSearches() error = %v", err)
	}
	want := []int{155, 19995, 603}
	if len(got) != len(want) {
		t.Fatalf("RecentSearches() returned %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i, id := range want {
		if got[i].MovieID != id {
			t.Errorf("row %d = %d, want %d", i, got[i].MovieID, id)
		}
	}

	limited, _ := db.RecentSearches(ctx, "alice", 2)
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d rows", len(limited))
	}
	empty, _ := db.RecentSearches(ctx, "carol", 0)
	if empty == nil || len(empty) != 0 {
		t.Errorf("RecentSearches(carol) = %v, want empty slice", empty)
	}
}

func TestRecentGenreSearches_UpsertAndOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, g := range []string{"Action", "Drama", "Action", "Comedy", "Horror", "Sci-Fi", "Western"} {
		if err := db.RecordGenreSearch(ctx, "alice", g); err != nil {
			t.Fatalf("RecordGenreSearch() error = %v", err)
		}
	}

	got, err := db.RecentGenreSearches(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("RecentGenreSearches() error = %v", err)
	}
	want := []string{"Western", "Sci-Fi", "Horror", "Comedy", "Action"}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i, g := range want {
		if got[i].Genre != g {
			t.Errorf("row %d = %s, want %s", i, got[i].Genre, g)
		}
	}
}
