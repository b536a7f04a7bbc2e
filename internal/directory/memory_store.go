package directory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal // by public key
	customers  map[string]*Customer  // by lowercased email
	nextID     int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*Principal),
		customers:  make(map[string]*Customer),
		nextID:     1,
	}
}

// AddPrincipal registers a principal for its public key (test/dev seeding).
func (s *MemoryStore) AddPrincipal(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID
		s.nextID++
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.principals[p.PublicKey] = p
}

func (s *MemoryStore) GetPrincipalByKey(ctx context.Context, key string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[key]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[strings.ToLower(email)]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CreateCustomer(ctx context.Context, c *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(c.Email)
	if _, ok := s.customers[key]; ok {
		return ErrCustomerExists
	}
	c.ID = s.nextID
	s.nextID++
	cp := *c
	s.customers[key] = &cp
	return nil
}
