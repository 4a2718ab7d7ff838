package store

import (
	"context"
	"sync"
	"time"

	"openletter/internal/nation/models"
	id "openletter/pkg/domain"
)

// InMemoryStore keeps entries in a map keyed by id.NationKey. Used in tests and when no database is
// configured for local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.Entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]models.Entry)}
}

func (s *InMemoryStore) Get(_ context.Context, name string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id.NationKey(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *InMemoryStore) GetMany(_ context.Context, names []string) (map[string]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Entry, len(names))
	for _, name := range names {
		key := id.NationKey(name)
		if entry, ok := s.entries[key]; ok {
			out[key] = entry
		}
	}
	return out, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, entry models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id.NationKey(entry.Name)] = entry
	return nil
}

func (s *InMemoryStore) UpsertBatch(_ context.Context, entries []models.Entry, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		entry.UpdatedAt = updatedAt
		s.entries[id.NationKey(entry.Name)] = entry
	}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id.NationKey(name))
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
