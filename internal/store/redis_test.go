package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCachedStore_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	seedProduct(t, primary, "1", 10)
	cs := NewCachedStore(primary, unreachableRedis(t), time.Minute)

	p, err := cs.GetProduct(ctx, "1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.ID != "1" || p.Stock != 10 {
		t.Errorf("unexpected product %+v", p)
	}

	updated, err := cs.UpdateProduct(ctx, "1", func(p *model.Product) error {
		p.CurrentPrice = decimal.NewFromInt(120)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if !updated.CurrentPrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("current price = %s, want 120", updated.CurrentPrice)
	}

	stored, _ := primary.GetProduct(ctx, "1")
	if !stored.CurrentPrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("primary not updated: %s", stored.CurrentPrice)
	}

	history, err := cs.GetPriceHistory(ctx, "1")
	if err != nil || len(history) != 1 {
		t.Errorf("history = %v, %v", history, err)
	}
}

func TestCachedStore_PassesThroughErrors(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	p := seedProduct(t, primary, "1", 10)
	cs := NewCachedStore(primary, unreachableRedis(t), time.Minute)

	if _, err := cs.GetProduct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := cs.CreateProduct(ctx, p); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	_, err := cs.UpdateProduct(ctx, "1", func(*model.Product) error { return ErrNoChange })
	if !errors.Is(err, ErrNoChange) {
		t.Errorf("expected ErrNoChange, got %v", err)
	}
}

func TestProductKey(t *testing.T) {
	if got := productKey("42"); got != "product:42" {
		t.Errorf("productKey = %q", got)
	}
}

// mapCache is an in-process stand-in for the few Redis commands CachedStore
// uses. Any other command panics on the nil embedded interface.
type mapCache struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := c.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = string(value.([]byte))
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func (c *mapCache) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx, "setnx", key)
	if _, ok := c.data[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	c.data[key] = string(value.([]byte))
	cmd.SetVal(true)
	return cmd
}

func (c *mapCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(n)
	return cmd
}

// interleavingStore runs during once, after its first read has been taken
// from the primary but before that read is returned.
type interleavingStore struct {
	Store
	once   sync.Once
	during func()
}

func (s *interleavingStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	s.once.Do(s.during)
	return p, err
}

func TestCachedStore_SlowReadDoesNotOverwriteCommittedUpdate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	seedProduct(t, mem, "1", 10)

	primary := &interleavingStore{Store: mem}
	cs := NewCachedStore(primary, newMapCache(), time.Minute)
	primary.during = func() {
		_, err := cs.UpdateProduct(ctx, "1", func(p *model.Product) error {
			p.CurrentPrice = decimal.NewFromInt(120)
			return nil
		})
		if err != nil {
			t.Errorf("UpdateProduct: %v", err)
		}
	}

	// The first read carries the pre-update price back to the cache layer.
	stale, err := cs.GetProduct(ctx, "1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !stale.CurrentPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("first read = %s, want the pre-update 100", stale.CurrentPrice)
	}

	got, err := cs.GetProduct(ctx, "1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !got.CurrentPrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("cached price = %s, want 120", got.CurrentPrice)
	}
}

func TestCachedStore_UpdatePublishesCommittedProduct(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	seedProduct(t, mem, "1", 10)
	cache := newMapCache()
	cs := NewCachedStore(mem, cache, time.Minute)

	if _, err := cs.GetProduct(ctx, "1"); err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if _, err := cs.UpdateProduct(ctx, "1", func(p *model.Product) error {
		p.Stock = 4
		return nil
	}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	data, err := cache.Get(ctx, productKey("1")).Bytes()
	if err != nil {
		t.Fatalf("expected a cached product: %v", err)
	}
	if !strings.Contains(string(data), `"stock":4`) {
		t.Errorf("cache holds %s, want the committed stock 4", data)
	}

	// An aborted update leaves the key empty rather than stale.
	if _, err := cs.UpdateProduct(ctx, "1", func(*model.Product) error { return ErrNoChange }); !errors.Is(err, ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
	if err := cache.Get(ctx, productKey("1")).Err(); !errors.Is(err, redis.Nil) {
		t.Errorf("expected an empty key after an aborted update, got %v", err)
	}
}
