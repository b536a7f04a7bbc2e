package catalog

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]*Product
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[int64]*Product)}
}

// Add registers a product (test/dev seeding).
func (s *MemoryStore) Add(p *Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	cp.BundleItems = append([]int64(nil), p.BundleItems...)
	cp.Files = append([]File(nil), p.Files...)
	return &cp, nil
}
