package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/KamdynS/go-structured/transcript"
)

// Store keeps records in process memory
type Store struct {
	mu      sync.RWMutex
	records map[string]transcript.Record
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		records: make(map[string]transcript.Record),
	}
}

// Save implements transcript.Store interface
func (s *Store) Save(ctx context.Context, r transcript.Record) error {
	if r.ID == "" {
		r.ID = transcript.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

// Get implements transcript.Store interface
func (s *Store) Get(ctx context.Context, id string) (transcript.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return transcript.Record{}, transcript.ErrNotFound
	}
	return r, nil
}

// List implements transcript.Store interface
func (s *Store) List(ctx context.Context, limit int) ([]transcript.Record, error) {
	s.mu.RLock()
	out := make([]transcript.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ transcript.Store = (*Store)(nil)
