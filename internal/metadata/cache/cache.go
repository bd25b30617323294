// Package cache provides persistent key-value stores for movie metadata.
//
// Values are opaque bytes; the metadata package decides their encoding.
// Entries never expire.
package cache

import (
	"fmt"
	"strings"
)

// Store defines the interface for persisting cached metadata.
type Store interface {
	// Get retrieves data by key. Returns the data and true if found.
	Get(key string) ([]byte, bool)

	// Set stores data under key, replacing any previous value.
	Set(key string, data []byte) error

	// Len returns the number of stored entries.
	Len() int

	// Clear removes all entries.
	Clear() error

	// Close releases resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open creates the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendBadger:
		return NewBadgerStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
