package store

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ytget/yt-converter/internal/model"
)

// MemoryStore is a process-wide Store backed by go-cache with expiry disabled
type MemoryStore struct {
	// mu makes RemoveAll a single step for readers
	mu    sync.RWMutex
	cache *gocache.Cache
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Insert implements Store
func (s *MemoryStore) Insert(_ context.Context, rec model.ArtifactRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.cache.Add(rec.Token, rec, gocache.NoExpiration); err != nil {
		return ErrDuplicateToken
	}
	return nil
}

// Lookup implements Store
func (s *MemoryStore) Lookup(_ context.Context, token string) (model.ArtifactRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache.Get(token)
	if !ok {
		return model.ArtifactRecord{}, false, nil
	}
	rec, ok := v.(model.ArtifactRecord)
	return rec, ok, nil
}

// RemoveAll implements Store
func (s *MemoryStore) RemoveAll(_ context.Context, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range tokens {
		s.cache.Delete(token)
	}
	return nil
}

// Snapshot implements Store
func (s *MemoryStore) Snapshot(_ context.Context) ([]model.ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.cache.Items()
	out := make([]model.ArtifactRecord, 0, len(items))
	for _, item := range items {
		if rec, ok := item.Object.(model.ArtifactRecord); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the number of registered artifacts
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
