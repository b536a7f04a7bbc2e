package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[int64]*Payment
	stats    map[int64]*Stats // by product id
	nextID   int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[int64]*Payment),
		stats:    make(map[int64]*Stats),
		nextID:   1,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	cp := clonePayment(p)
	s.payments[p.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) Complete(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.Status == StatusRefunded {
		return ErrInvalidTransition
	}
	if p.Status == StatusComplete {
		return nil
	}
	p.Status = StatusComplete
	p.CompletedAt = &at

	st, ok := s.stats[p.ProductID]
	if !ok {
		st = &Stats{ProductID: p.ProductID, Earnings: "0.00"}
		s.stats[p.ProductID] = st
	}
	st.Sales++
	prev, _ := ParseAmount(st.Earnings)
	cents, _ := ParseAmount(p.Total)
	st.Earnings = FormatAmount(prev + cents)
	return nil
}

func (s *MemoryStore) Refund(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = StatusRefunded
	p.RefundedAt = &at
	return nil
}

func (s *MemoryStore) SetMeta(ctx context.Context, id int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.Meta == nil {
		p.Meta = make(map[string]string)
	}
	p.Meta[key] = value
	return nil
}

func (s *MemoryStore) GetStats(ctx context.Context, productID int64) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[productID]
	if !ok {
		return &Stats{ProductID: productID, Earnings: "0.00"}, nil
	}
	cp := *st
	return &cp, nil
}

func clonePayment(p *Payment) *Payment {
	cp := *p
	cp.Cart = append([]LineItem(nil), p.Cart...)
	cp.Licenses = append([]License(nil), p.Licenses...)
	if p.Meta != nil {
		cp.Meta = make(map[string]string, len(p.Meta))
		for k, v := range p.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}
