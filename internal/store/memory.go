package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

// productEntry guards one product. Updates to different products never
// contend with each other.
type productEntry struct {
	mu sync.Mutex
	p  model.Product
}

// MemoryStore implements Store with in-memory maps. This is the default
// store: nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*productEntry
	order    []string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*productEntry),
	}
}

func (s *MemoryStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, p.ID)
	}

	// Store a copy to avoid external mutation.
	s.products[p.ID] = &productEntry{p: p.Clone()}
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryStore) entry(id string) (*productEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.p.Clone()
	return &c, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	entries := make([]*productEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.products[id])
	}
	s.mu.RUnlock()

	products := make([]model.Product, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		products = append(products, e.p.Clone())
		e.mu.Unlock()
	}
	return products, nil
}

func (s *MemoryStore) UpdateProduct(_ context.Context, id string, fn UpdateFunc) (*model.Product, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.p.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	e.p = working

	c := working.Clone()
	return &c, nil
}

func (s *MemoryStore) GetPriceHistory(ctx context.Context, id string) ([]model.PricePoint, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.PriceHistory, nil
}
