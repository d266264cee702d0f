package orchestrator

import (
	"context"
	"sort"
	"sync"
)

// Store is the persistence abstraction for serialized playlists.
// Implementations can be in-memory, file-based, or remote; see
// internal/platform/storage. The Repository uses Store for all reads and
// writes, so callers of Repository do not need to know which Store is used.
type Store interface {
	// Load returns the stored bytes for key; ok is false if nothing is stored.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string][]byte),
	}
}

// Load implements Store.Load.
func (s *InMemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Save implements Store.Save.
func (s *InMemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List implements Store.List. Keys are returned sorted.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
