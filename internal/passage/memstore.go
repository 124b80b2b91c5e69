package passage

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	passages map[string]*Passage
}

// NewMemStore returns a MemStore holding ps.
func NewMemStore(ps ...*Passage) *MemStore {
	s := &MemStore{passages: make(map[string]*Passage, len(ps))}
	for _, p := range ps {
		s.passages[p.ID] = clonePassage(p)
	}
	return s
}

// Passage implements [Provider.Passage]. The returned value is a copy.
func (s *MemStore) Passage(_ context.Context, id string) (*Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return clonePassage(p), nil
}

// Put implements [Store.Put].
func (s *MemStore) Put(_ context.Context, p *Passage) error {
	if err := Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passages == nil {
		s.passages = make(map[string]*Passage)
	}
	s.passages[p.ID] = clonePassage(p)
	return nil
}

// IDs implements [Store.IDs].
func (s *MemStore) IDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.passages))
	for id := range s.passages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func clonePassage(p *Passage) *Passage {
	c := *p
	c.Segments = slices.Clone(p.Segments)
	return &c
}
