package ticket

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists tickets by cache key. Load returns (nil, nil) on a miss;
// implementations decide nothing about validity, callers do.
type Store interface {
	Load(key string) (*Ticket, error)
	Save(key string, t *Ticket) error
}

// MemoryStore keeps tickets in process memory. Used in tests and one-shot
// CLI invocations.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Ticket
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Ticket)}
}

// Load retrieves a ticket by key.
func (s *MemoryStore) Load(key string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// Save stores a ticket under key.
func (s *MemoryStore) Save(key string, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.entries[key] = &cp
	return nil
}

// FileStore persists one JSON file per key under a directory, surviving
// process restarts. Writes go through a temp file and rename so a reader
// never sees a partial ticket.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ticket cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, "ta-"+key+".json")
}

// Load reads the ticket file for key. A missing or unreadable file is a
// cache miss, not an error; the caller will just authenticate again.
func (s *FileStore) Load(key string) (*Ticket, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, nil
	}
	return &t, nil
}

// Save writes the ticket file for key atomically.
func (s *FileStore) Save(key string, t *Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode ticket: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "ta-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create ticket temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write ticket: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close ticket temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store ticket: %w", err)
	}
	return nil
}
