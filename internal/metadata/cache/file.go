package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/marco/cinematch/internal/logging"
)

// FileStore keeps the whole cache as one JSON object on disk:
//
//	{"19995": ["https://...", "2009", "...", ["Action"], "2009-12-15", 162, 7.6], ...}
//
// The file is read once at open and rewritten in full on every Set. There is
// no cross-process locking; the last writer wins.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewFileStore opens the cache file at path. A missing file yields an empty
// store; an unparseable file is logged and also treated as empty.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cache file path is empty")
	}
	s := &FileStore{path: path, entries: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		logging.Warn().Str("path", path).Err(err).Msg("cache file unreadable, starting with empty cache")
		s.entries = make(map[string]json.RawMessage)
	}
	if s.entries == nil {
		// A file containing JSON null decodes to a nil map.
		s.entries = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Get retrieves data from the in-memory copy.
func (s *FileStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return []byte(data), true
}

// Set stores data and rewrites the cache file. data must be valid JSON.
func (s *FileStore) Set(key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("cache value for %s is not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = json.RawMessage(append([]byte(nil), data...))
	return s.flushLocked()
}

// Len returns the number of entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries and truncates the file to an empty object.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]json.RawMessage)
	return s.flushLocked()
}

// Close is a no-op; every Set is already on disk.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) flushLocked() error {
	out, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, out, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}
