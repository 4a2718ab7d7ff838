// Package store persists signatures.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"openletter/internal/signature/models"
	id "openletter/pkg/domain"
)

// InMemoryStore keeps signatures in a map keyed by id.NationKey.
type InMemoryStore struct {
	mu       sync.RWMutex
	byNation map[string]*models.Signature
	nextID   int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byNation: make(map[string]*models.Signature)}
}

func (s *InMemoryStore) Upsert(_ context.Context, nation, checksum string, signedAt time.Time) (*models.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.NationKey(nation)
	sig, ok := s.byNation[key]
	if !ok {
		s.nextID++
		sig = &models.Signature{ID: s.nextID}
		s.byNation[key] = sig
	}
	sig.Nation = nation
	sig.Checksum = checksum
	sig.SignedAt = signedAt
	out := *sig
	return &out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signature, 0, len(s.byNation))
	for _, sig := range s.byNation {
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SignedAt.Equal(out[j].SignedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SignedAt.After(out[j].SignedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sigID id.SignatureID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sig := range s.byNation {
		if sig.ID == int64(sigID) {
			delete(s.byNation, key)
			return true, nil
		}
	}
	return false, nil
}
