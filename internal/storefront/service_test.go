package storefront_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/cart"
	"github.com/dynamicmart/pricing-engine/internal/catalog"
	"github.com/dynamicmart/pricing-engine/internal/model"
	"github.com/dynamicmart/pricing-engine/internal/pricing"
	"github.com/dynamicmart/pricing-engine/internal/repricer"
	"github.com/dynamicmart/pricing-engine/internal/store"
	"github.com/dynamicmart/pricing-engine/internal/storefront"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type fakeWatcher struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (f *fakeWatcher) Watch(id string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[id] = true
	return func() { f.Unwatch(id) }
}

func (f *fakeWatcher) Unwatch(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.ids[id]
	delete(f.ids, id)
	return ok
}

func (f *fakeWatcher) Watching(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

// newTestEnv creates a storefront over a seeded in-memory store and a chi
// router with every route registered.
func newTestEnv(t *testing.T) (*store.MemoryStore, *fakeWatcher, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	cat := catalog.NewService(ms)
	if _, err := cat.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	noon := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	rep := repricer.New(ms, pricing.NewEngine(), fixedRand(0),
		repricer.WithClock(noon), repricer.WithLocation(time.UTC))
	watcher := &fakeWatcher{ids: make(map[string]bool)}
	svc := storefront.NewService(cat, cart.NewService(ms), pricing.NewEngine(), rep, watcher)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", svc.ListProducts)
		r.Post("/products", svc.CreateProduct)
		r.Get("/products/{productID}", svc.GetProduct)
		r.Get("/products/{productID}/history", svc.GetHistory)
		r.Post("/products/{productID}/view", svc.RecordView)
		r.Post("/products/{productID}/reprice", svc.Reprice)
		r.Post("/products/{productID}/watch", svc.Watch)
		r.Delete("/products/{productID}/watch", svc.Unwatch)
		r.Get("/categories", svc.ListCategories)
		r.Get("/dashboard", svc.GetDashboard)
		r.Post("/pricing/quote", svc.Quote)
		r.Post("/carts", svc.CreateCart)
		r.Get("/carts/{cartID}", svc.GetCart)
		r.Post("/carts/{cartID}/items", svc.AddItem)
		r.Put("/carts/{cartID}/items/{productID}", svc.UpdateItem)
		r.Delete("/carts/{cartID}/items/{productID}", svc.RemoveItem)
		r.Post("/carts/{cartID}/checkout", svc.Checkout)
	})
	return ms, watcher, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// --- Catalog ---

func TestCreateAndGetProduct(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/products", catalog.CreateInput{
		ID:        "lamp",
		Name:      "Desk Lamp",
		Category:  "Home",
		BasePrice: d(40),
		Stock:     4,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/products/lamp", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decode[storefront.ProductView](t, w)
	if !p.CurrentPrice.Equal(d(40)) {
		t.Errorf("current price = %s, want 40", p.CurrentPrice)
	}
	if p.StockStatus != catalog.StatusLimited {
		t.Errorf("stock status = %q, want %q", p.StockStatus, catalog.StatusLimited)
	}
	if len(p.PriceHistory) != 1 || p.PriceHistory[0].Reason != model.InitialPriceReason {
		t.Errorf("unexpected history %+v", p.PriceHistory)
	}
}

func TestCreateProduct_Errors(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		in   catalog.CreateInput
		want int
	}{
		{"missing name", catalog.CreateInput{Category: "Home", BasePrice: d(10)}, http.StatusBadRequest},
		{"zero base price", catalog.CreateInput{Name: "X", Category: "Home"}, http.StatusBadRequest},
		{"sub-cent base price", catalog.CreateInput{Name: "X", Category: "Home", BasePrice: decimal.RequireFromString("0.004")}, http.StatusBadRequest},
		{"duplicate id", catalog.CreateInput{ID: "1", Name: "X", Category: "Home", BasePrice: d(10)}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/products", tt.in)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	for _, path := range []string{"/api/v1/products/nope", "/api/v1/products/nope/history"} {
		w := do(t, router, "GET", path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestListProducts_Filters(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 6},
		{"?category=all", 6},
		{"?category=Electronics", 2},
		{"?q=premium", 2},
		{"?q=premium&category=Kitchen", 1},
		{"?q=nothing-matches", 0},
	}
	for _, tt := range tests {
		w := do(t, router, "GET", "/api/v1/products"+tt.query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tt.query, w.Code)
		}
		got := decode[[]storefront.ProductView](t, w)
		if len(got) != tt.want {
			t.Errorf("%q: got %d products, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestRecordView_IncrementsDemand(t *testing.T) {
	ms, _, router := newTestEnv(t)
	before, _ := ms.GetProduct(context.Background(), "3")

	w := do(t, router, "POST", "/api/v1/products/3/view", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decode[storefront.ProductView](t, w)
	if p.Demand != before.Demand+1 {
		t.Errorf("demand = %d, want %d", p.Demand, before.Demand+1)
	}
}

func TestCategoriesAndDashboard(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/categories", nil)
	cats := decode[[]string](t, w)
	if len(cats) != 6 || cats[0] != catalog.AllCategories {
		t.Errorf("unexpected categories %v", cats)
	}

	w = do(t, router, "GET", "/api/v1/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode[model.DashboardStats](t, w)
	if stats.TotalProducts != 6 {
		t.Errorf("total products = %d, want 6", stats.TotalProducts)
	}
}

// --- Pricing ---

func TestQuote(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/pricing/quote", storefront.QuoteRequest{
		BasePrice:    d(100),
		Stock:        4,
		Demand:       20,
		UserBehavior: 0.5,
		Hour:         12,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[storefront.QuoteResponse](t, w)
	if !resp.Price.Equal(d(145)) {
		t.Errorf("price = %s, want 145", resp.Price)
	}
	if !resp.Multiplier.Equal(d(1.45)) {
		t.Errorf("multiplier = %s, want 1.45", resp.Multiplier)
	}
	if resp.Reason != pricing.ReasonLimitedStock {
		t.Errorf("reason = %q", resp.Reason)
	}
	if !resp.Material {
		t.Error("expected a material change")
	}
}

func TestQuote_InvalidInput(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		req  storefront.QuoteRequest
	}{
		{"zero base price", storefront.QuoteRequest{Stock: 10}},
		{"negative stock", storefront.QuoteRequest{BasePrice: d(10), Stock: -1}},
		{"negative demand", storefront.QuoteRequest{BasePrice: d(10), Demand: -1}},
		{"hour out of range", storefront.QuoteRequest{BasePrice: d(10), Hour: 24}},
		{"behavior out of range", storefront.QuoteRequest{BasePrice: d(10), UserBehavior: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/pricing/quote", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestReprice(t *testing.T) {
	ms, _, router := newTestEnv(t)

	// Smart Fitness Watch: base 199.99, stock 8. With no jitter demand is
	// round(50 × 1.5 × 0.8) = 60, so the multiplier is 1 + 0.15 + 0.3.
	w := do(t, router, "POST", "/api/v1/products/2/reprice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[repricer.Result](t, w)
	want := d(199.99).Mul(d(1.45)).Round(2)
	if !res.Changed || !res.NewPrice.Equal(want) {
		t.Errorf("result = %+v, want changed to %s", res, want)
	}
	if res.Demand != 60 {
		t.Errorf("demand = %d, want 60", res.Demand)
	}

	p, _ := ms.GetProduct(context.Background(), "2")
	if !p.CurrentPrice.Equal(want) {
		t.Errorf("stored price = %s, want %s", p.CurrentPrice, want)
	}

	w = do(t, router, "POST", "/api/v1/products/nope/reprice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown product, got %d", w.Code)
	}
}

func TestWatchUnwatch(t *testing.T) {
	_, watcher, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/products/1/watch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !watcher.Watching("1") {
		t.Fatal("product should be watched")
	}

	w = do(t, router, "GET", "/api/v1/products/1", nil)
	if p := decode[storefront.ProductView](t, w); !p.Watched {
		t.Error("product view should report watched")
	}

	w = do(t, router, "DELETE", "/api/v1/products/1/watch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if watcher.Watching("1") {
		t.Error("product should no longer be watched")
	}

	w = do(t, router, "DELETE", "/api/v1/products/1/watch", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second unwatch: expected 404, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/products/nope/watch", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown product: expected 404, got %d", w.Code)
	}
}

// --- Carts ---

func TestCartFlow(t *testing.T) {
	ms, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/carts", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	c := decode[model.Cart](t, w)
	base := "/api/v1/carts/" + c.ID

	// Portable Bluetooth Speaker has 3 units.
	for i := 0; i < 3; i++ {
		w = do(t, router, "POST", base+"/items", storefront.AddItemRequest{ProductID: "4"})
		if w.Code != http.StatusOK {
			t.Fatalf("add %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}
	w = do(t, router, "POST", base+"/items", storefront.AddItemRequest{ProductID: "4"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when out of stock, got %d", w.Code)
	}

	w = do(t, router, "PUT", base+"/items/4", storefront.UpdateItemRequest{Quantity: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	c = decode[model.Cart](t, w)
	if c.TotalItems != 1 || !c.TotalPrice.Equal(d(79.99)) {
		t.Errorf("cart = %d items / %s, want 1 / 79.99", c.TotalItems, c.TotalPrice)
	}
	p, _ := ms.GetProduct(context.Background(), "4")
	if p.Stock != 2 {
		t.Errorf("stock = %d, want 2", p.Stock)
	}

	w = do(t, router, "POST", base+"/checkout", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	order := decode[cart.Order](t, w)
	if !order.TotalPrice.Equal(d(79.99)) {
		t.Errorf("order total = %s, want 79.99", order.TotalPrice)
	}

	w = do(t, router, "POST", base+"/checkout", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("empty checkout: expected 409, got %d", w.Code)
	}
}

func TestCart_Errors(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/carts/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown cart: expected 404, got %d", w.Code)
	}

	c := decode[model.Cart](t, do(t, router, "POST", "/api/v1/carts", nil))
	base := "/api/v1/carts/" + c.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing product id", "POST", base + "/items", storefront.AddItemRequest{}, http.StatusBadRequest},
		{"unknown product", "POST", base + "/items", storefront.AddItemRequest{ProductID: "nope"}, http.StatusNotFound},
		{"negative quantity", "PUT", base + "/items/1", storefront.UpdateItemRequest{Quantity: -1}, http.StatusBadRequest},
		{"update item not in cart", "PUT", base + "/items/1", storefront.UpdateItemRequest{Quantity: 2}, http.StatusNotFound},
		{"remove item not in cart", "DELETE", base + "/items/1", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
