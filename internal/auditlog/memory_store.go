package auditlog

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]*Entry
	nextID  int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]*Entry),
		nextID:  1,
	}
}

func (s *MemoryStore) Create(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Close(ctx context.Context, id int64, typ string, transID int64, result bool, errorCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Type = typ
	e.TransID = transID
	e.Result = result
	e.ErrorCode = errorCode
	e.Closed = true
	return nil
}

// Get returns an entry by id (used in tests).
func (s *MemoryStore) Get(id int64) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// All returns every entry (used in tests).
func (s *MemoryStore) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
