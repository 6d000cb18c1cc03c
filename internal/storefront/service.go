// Package storefront provides the HTTP handlers for browsing the catalog,
// quoting and repricing products, managing carts, and watching products
// for scheduled repricing.
//
// All monetary values use shopspring/decimal, never float64.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/cart"
	"github.com/dynamicmart/pricing-engine/internal/catalog"
	"github.com/dynamicmart/pricing-engine/internal/model"
	"github.com/dynamicmart/pricing-engine/internal/pricing"
	"github.com/dynamicmart/pricing-engine/internal/repricer"
	"github.com/dynamicmart/pricing-engine/internal/store"
)

// Repricer runs a single pricing tick on demand.
type Repricer interface {
	Reprice(ctx context.Context, productID string) (repricer.Result, error)
}

// Watcher starts and stops scheduled repricing for a product.
type Watcher interface {
	Watch(productID string) (stop func())
	Unwatch(productID string) bool
	Watching(productID string) bool
}

// Service handles storefront HTTP requests. It holds no state of its own;
// every collaborator is injected.
type Service struct {
	catalog  *catalog.Service
	carts    *cart.Service
	engine   *pricing.Engine
	repricer Repricer
	watcher  Watcher
	validate *validator.Validate
}

// NewService creates a storefront service.
// Pass nil for watcher if scheduled repricing is not available.
func NewService(cat *catalog.Service, carts *cart.Service, engine *pricing.Engine, rep Repricer, watcher Watcher) *Service {
	return &Service{
		catalog:  cat,
		carts:    carts,
		engine:   engine,
		repricer: rep,
		watcher:  watcher,
		validate: validator.New(),
	}
}

// --- Request/Response types ---

// ProductView is a product as shown to shoppers.
type ProductView struct {
	model.Product
	StockStatus string `json:"stock_status"`
	Watched     bool   `json:"watched"`
}

// QuoteRequest is the JSON body for POST /pricing/quote.
type QuoteRequest struct {
	BasePrice    decimal.Decimal  `json:"base_price"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"` // defaults to base_price
	Stock        int              `json:"stock"`
	Demand       int              `json:"demand"`
	UserBehavior float64          `json:"user_behavior" validate:"gte=0,lte=1"`
	Hour         int              `json:"hour" validate:"gte=0,lte=23"`
}

// QuoteResponse is the JSON body returned from POST /pricing/quote.
type QuoteResponse struct {
	Price      decimal.Decimal      `json:"price"`
	Multiplier decimal.Decimal      `json:"multiplier"`
	Reason     string               `json:"reason"`
	Material   bool                 `json:"material"`
	Factors    model.PricingFactors `json:"factors"`
}

// AddItemRequest is the JSON body for POST /carts/{cartID}/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// UpdateItemRequest is the JSON body for PUT /carts/{cartID}/items/{productID}.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// WatchResponse reports whether a product is on the repricing schedule.
type WatchResponse struct {
	ProductID string `json:"product_id"`
	Watching  bool   `json:"watching"`
}

// --- Catalog handlers ---

// ListProducts handles GET /api/v1/products?q=&category=
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := s.catalog.Search(r.Context(), q.Get("q"), q.Get("category"))
	if err != nil {
		s.writeServiceError(w, "list products", err)
		return
	}

	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, s.view(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateProduct handles POST /api/v1/products
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.catalog.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(*p))
}

// GetProduct handles GET /api/v1/products/{productID}
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeServiceError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*p))
}

// GetHistory handles GET /api/v1/products/{productID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.catalog.History(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeServiceError(w, "get history", err)
		return
	}
	if history == nil {
		history = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, history)
}

// RecordView handles POST /api/v1/products/{productID}/view
func (s *Service) RecordView(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.RecordView(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeServiceError(w, "record view", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*p))
}

// ListCategories handles GET /api/v1/categories
func (s *Service) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.writeServiceError(w, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// GetDashboard handles GET /api/v1/dashboard
func (s *Service) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Dashboard(r.Context())
	if err != nil {
		s.writeServiceError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Pricing handlers ---

// Quote handles POST /api/v1/pricing/quote
// Prices arbitrary inputs without touching the catalog.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	current := req.BasePrice
	if req.CurrentPrice != nil {
		current = *req.CurrentPrice
	}
	p := model.Product{BasePrice: req.BasePrice, CurrentPrice: current, Stock: req.Stock}
	f := model.PricingFactors{
		StockLevel:   req.Stock,
		DemandLevel:  req.Demand,
		UserBehavior: req.UserBehavior,
		TimeOfDay:    req.Hour,
		Seasonality:  1,
	}

	m, err := s.engine.Multiplier(p, f)
	if err != nil {
		s.writeServiceError(w, "quote", err)
		return
	}
	price, err := s.engine.ComputePrice(p, f)
	if err != nil {
		s.writeServiceError(w, "quote", err)
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		Price:      price,
		Multiplier: m,
		Reason:     s.engine.ExplainPriceChange(current, price, f),
		Material:   pricing.IsMaterial(current, price),
		Factors:    f,
	})
}

// Reprice handles POST /api/v1/products/{productID}/reprice
// Runs one pricing tick immediately.
func (s *Service) Reprice(w http.ResponseWriter, r *http.Request) {
	res, err := s.repricer.Reprice(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeServiceError(w, "reprice", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Watch handles POST /api/v1/products/{productID}/watch
func (s *Service) Watch(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, "scheduled repricing is disabled", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "productID")
	if _, err := s.catalog.Get(r.Context(), id); err != nil {
		s.writeServiceError(w, "watch", err)
		return
	}

	s.watcher.Watch(id)
	slog.Info("product watched", "product", id)
	writeJSON(w, http.StatusOK, WatchResponse{ProductID: id, Watching: true})
}

// Unwatch handles DELETE /api/v1/products/{productID}/watch
func (s *Service) Unwatch(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, "scheduled repricing is disabled", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "productID")
	if !s.watcher.Unwatch(id) {
		writeError(w, "product is not watched", http.StatusNotFound)
		return
	}

	slog.Info("product unwatched", "product", id)
	writeJSON(w, http.StatusOK, WatchResponse{ProductID: id, Watching: false})
}

// --- Cart handlers ---

// CreateCart handles POST /api/v1/carts
func (s *Service) CreateCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Create(r.Context())
	if err != nil {
		s.writeServiceError(w, "create cart", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetCart handles GET /api/v1/carts/{cartID}
func (s *Service) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		s.writeServiceError(w, "get cart", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AddItem handles POST /api/v1/carts/{cartID}/items
func (s *Service) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, "product_id is required", http.StatusBadRequest)
		return
	}

	c, err := s.carts.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID)
	if err != nil {
		s.writeServiceError(w, "add item", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateItem handles PUT /api/v1/carts/{cartID}/items/{productID}
func (s *Service) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, "quantity must not be negative", http.StatusBadRequest)
		return
	}

	c, err := s.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		s.writeServiceError(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RemoveItem handles DELETE /api/v1/carts/{cartID}/items/{productID}
func (s *Service) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeServiceError(w, "remove item", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Checkout handles POST /api/v1/carts/{cartID}/checkout
func (s *Service) Checkout(w http.ResponseWriter, r *http.Request) {
	order, err := s.carts.Checkout(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		s.writeServiceError(w, "checkout", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Service) view(p model.Product) ProductView {
	v := ProductView{Product: p, StockStatus: catalog.StockStatus(p.Stock)}
	if s.watcher != nil {
		v.Watched = s.watcher.Watching(p.ID)
	}
	return v
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrNotInCart):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, cart.ErrStockLimit),
		errors.Is(err, cart.ErrEmptyCart):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps err to a status code. Internal errors are logged
// and replaced with a generic message.
func (s *Service) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "err", err)
		writeError(w, op+" failed", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
