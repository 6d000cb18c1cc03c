package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and then publish the committed product to
// the cache; reads check Redis first then fall back to the primary. A read
// only fills an empty key, so a reader holding a pre-commit copy can never
// overwrite what a writer published.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then cache the committed product) ---

func (s *CachedStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.cacheProduct(ctx, p)
	return nil
}

func (s *CachedStore) UpdateProduct(ctx context.Context, id string, fn UpdateFunc) (*model.Product, error) {
	// If the Set below fails the key stays empty instead of stale.
	s.rdb.Del(ctx, productKey(id))
	p, err := s.primary.UpdateProduct(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	return p, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	data, err := s.rdb.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	s.fillProduct(ctx, p)
	return p, nil
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, id string) ([]model.PricePoint, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.PriceHistory, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.primary.ListProducts(ctx)
}

// --- Cache helpers ---

// cacheProduct stores a committed product, replacing any cached copy.
func (s *CachedStore) cacheProduct(ctx context.Context, p *model.Product) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, productKey(p.ID), data, s.ttl)
	}
}

// fillProduct caches a product read from the primary only if no writer has
// published a copy in the meantime.
func (s *CachedStore) fillProduct(ctx context.Context, p *model.Product) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.SetNX(ctx, productKey(p.ID), data, s.ttl)
	}
}

func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
