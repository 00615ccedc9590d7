package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with an optional idle TTL.
type MemoryStore struct {
	mux   sync.RWMutex
	byKey map[string]*Record
	ttl   time.Duration
}

// NewMemoryStore creates a MemoryStore; ttl 0 keeps records until deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{byKey: map[string]*Record{}, ttl: ttl}
}

func (s *MemoryStore) Put(_ context.Context, r *Record) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	stamp(r, time.Now())
	s.byKey[r.Key] = r.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mux.RLock()
	r, ok := s.byKey[key]
	s.mux.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(r, time.Now()) {
		_ = s.Delete(context.Background(), key)
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (s *MemoryStore) Touch(_ context.Context, key string, at time.Time) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	r, ok := s.byKey[key]
	if !ok {
		return ErrNotFound
	}
	r.LastUsedAt = at
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.byKey, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	now := time.Now()
	s.mux.RLock()
	defer s.mux.RUnlock()
	ret := make([]*Record, 0, len(s.byKey))
	for _, r := range s.byKey {
		if s.expired(r, now) {
			continue
		}
		ret = append(ret, r.clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Key < ret[j].Key })
	return ret, nil
}

func (s *MemoryStore) expired(r *Record, now time.Time) bool {
	return s.ttl > 0 && now.Sub(r.LastUsedAt) > s.ttl
}

func stamp(r *Record, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.LastUsedAt.IsZero() {
		r.LastUsedAt = now
	}
}
