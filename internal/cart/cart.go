// Package cart keeps shopper baskets and moves stock between the catalog
// and those baskets.
//
// Adding an item takes one unit out of the product's stock and removing it
// puts the whole quantity back. Every stock change goes through the store's
// per-product update, the same path the repricer uses, so a pricing tick
// always sees the stock it prices against.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/metrics"
	"github.com/dynamicmart/pricing-engine/internal/model"
	"github.com/dynamicmart/pricing-engine/internal/store"
)

var (
	// ErrCartNotFound is returned for an unknown cart ID.
	ErrCartNotFound = errors.New("cart: cart not found")

	// ErrNotInCart is returned when changing an item the cart does not hold.
	ErrNotInCart = errors.New("cart: product not in cart")

	// ErrStockLimit is returned when a change asks for more units than the
	// product has left.
	ErrStockLimit = errors.New("cart: stock limit reached")

	// ErrInvalidQuantity is returned for negative quantities.
	ErrInvalidQuantity = errors.New("cart: quantity must not be negative")

	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart: cart is empty")
)

type line struct {
	productID string
	quantity  int
}

type basket struct {
	mu        sync.Mutex
	id        string
	lines     []line
	createdAt time.Time
}

func (b *basket) find(productID string) int {
	for i, l := range b.lines {
		if l.productID == productID {
			return i
		}
	}
	return -1
}

// Order is the result of a checkout.
type Order struct {
	ID         string           `json:"id"`
	CartID     string           `json:"cart_id"`
	Items      []model.CartItem `json:"items"`
	TotalItems int              `json:"total_items"`
	TotalPrice decimal.Decimal  `json:"total_price"`
	PlacedAt   time.Time        `json:"placed_at"`
}

// Service manages carts in memory.
type Service struct {
	store store.Store
	now   func() time.Time

	mu    sync.RWMutex
	carts map[string]*basket
}

// NewService creates a cart service that reserves stock in st.
func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
		carts: make(map[string]*basket),
	}
}

// Create opens an empty cart.
func (s *Service) Create(ctx context.Context) (*model.Cart, error) {
	b := &basket{id: uuid.New().String(), createdAt: s.now().UTC()}

	s.mu.Lock()
	s.carts[b.id] = b
	s.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	return s.view(ctx, b)
}

// Get returns a cart priced at the products' current prices.
func (s *Service) Get(ctx context.Context, cartID string) (*model.Cart, error) {
	b, err := s.basket(cartID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.view(ctx, b)
}

// AddItem puts one more unit of a product in the cart.
func (s *Service) AddItem(ctx context.Context, cartID, productID string) (*model.Cart, error) {
	b, err := s.basket(cartID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err = s.store.UpdateProduct(ctx, productID, func(p *model.Product) error {
		if p.Stock <= 0 {
			return fmt.Errorf("%w: %s has no stock left", ErrStockLimit, p.Name)
		}
		p.Stock--
		return nil
	})
	if err != nil {
		metrics.CartOperations.WithLabelValues("add", "rejected").Inc()
		return nil, err
	}

	if i := b.find(productID); i >= 0 {
		b.lines[i].quantity++
	} else {
		b.lines = append(b.lines, line{productID: productID, quantity: 1})
	}
	metrics.CartOperations.WithLabelValues("add", "ok").Inc()

	slog.Info("item added to cart", "cart", cartID, "product", productID)
	return s.view(ctx, b)
}

// UpdateQuantity sets an item's quantity. Zero removes the item. Stock moves
// by the difference between the old and new quantity.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, cartID, productID)
	}

	b, err := s.basket(cartID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(productID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotInCart, productID)
	}

	delta := quantity - b.lines[i].quantity
	if delta != 0 {
		_, err = s.store.UpdateProduct(ctx, productID, func(p *model.Product) error {
			if delta > p.Stock {
				return fmt.Errorf("%w: only %d more of %s available", ErrStockLimit, p.Stock, p.Name)
			}
			p.Stock -= delta
			return nil
		})
		if err != nil {
			metrics.CartOperations.WithLabelValues("update", "rejected").Inc()
			return nil, err
		}
	}

	b.lines[i].quantity = quantity
	metrics.CartOperations.WithLabelValues("update", "ok").Inc()
	return s.view(ctx, b)
}

// RemoveItem drops an item from the cart and restores its stock.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (*model.Cart, error) {
	b, err := s.basket(cartID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(productID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotInCart, productID)
	}

	qty := b.lines[i].quantity
	_, err = s.store.UpdateProduct(ctx, productID, func(p *model.Product) error {
		p.Stock += qty
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Warn("removed item for unknown product", "cart", cartID, "product", productID)
	case err != nil:
		metrics.CartOperations.WithLabelValues("remove", "rejected").Inc()
		return nil, err
	}

	b.lines = append(b.lines[:i], b.lines[i+1:]...)
	metrics.CartOperations.WithLabelValues("remove", "ok").Inc()

	slog.Info("item removed from cart", "cart", cartID, "product", productID, "restored", qty)
	return s.view(ctx, b)
}

// Checkout turns the cart into an order at current prices and empties it.
// Reserved stock stays consumed. No payment is taken.
func (s *Service) Checkout(ctx context.Context, cartID string) (*Order, error) {
	b, err := s.basket(cartID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return nil, ErrEmptyCart
	}

	c, err := s.view(ctx, b)
	if err != nil {
		return nil, err
	}
	order := &Order{
		ID:         uuid.New().String(),
		CartID:     cartID,
		Items:      c.Items,
		TotalItems: c.TotalItems,
		TotalPrice: c.TotalPrice,
		PlacedAt:   s.now().UTC(),
	}
	b.lines = nil
	metrics.CartOperations.WithLabelValues("checkout", "ok").Inc()

	slog.Info("checkout initiated",
		"cart", cartID,
		"order", order.ID,
		"items", order.TotalItems,
		"total", order.TotalPrice.String(),
	)
	return order, nil
}

func (s *Service) basket(cartID string) (*basket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, cartID)
	}
	return b, nil
}

// view prices the cart. Caller holds b.mu.
func (s *Service) view(ctx context.Context, b *basket) (*model.Cart, error) {
	c := &model.Cart{
		ID:         b.id,
		Items:      make([]model.CartItem, 0, len(b.lines)),
		TotalPrice: decimal.Zero,
		CreatedAt:  b.createdAt,
	}
	for _, l := range b.lines {
		p, err := s.store.GetProduct(ctx, l.productID)
		if err != nil {
			return nil, err
		}
		lineTotal := p.CurrentPrice.Mul(decimal.NewFromInt(int64(l.quantity))).Round(2)
		c.Items = append(c.Items, model.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.quantity,
			UnitPrice: p.CurrentPrice,
			LineTotal: lineTotal,
		})
		c.TotalItems += l.quantity
		c.TotalPrice = c.TotalPrice.Add(lineTotal)
	}
	return c, nil
}
