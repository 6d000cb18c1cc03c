// Package store defines the persistence interface for the pricing engine.
// Implementations include in-memory (default, and for testing), PostgreSQL,
// and a Redis read-through cache wrapping either.
package store

import (
	"context"
	"errors"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

var (
	// ErrNotFound is returned when a product does not exist.
	ErrNotFound = errors.New("store: product not found")

	// ErrAlreadyExists is returned when creating a product whose ID is taken.
	ErrAlreadyExists = errors.New("store: product already exists")

	// ErrNoChange may be returned by an UpdateFunc to abandon the update
	// without writing anything. UpdateProduct passes it back to the caller.
	ErrNoChange = errors.New("store: no change")
)

// UpdateFunc mutates a private copy of a product. Returning a non-nil error
// discards the copy and leaves the stored product untouched.
type UpdateFunc func(p *model.Product) error

// Store is the persistence interface. UpdateProduct is the only way to
// mutate an existing product and runs its UpdateFunc as one serialized
// read-modify-write per product, so a price computed from one stock value
// can never be applied on top of a newer one.
type Store interface {
	// CreateProduct persists a new product.
	CreateProduct(ctx context.Context, p *model.Product) error

	// GetProduct retrieves a product, including its price history.
	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// ListProducts returns all products in creation order.
	ListProducts(ctx context.Context) ([]model.Product, error)

	// UpdateProduct atomically applies fn to the product and returns the
	// stored result. Price history entries appended by fn are persisted;
	// existing entries are never rewritten.
	UpdateProduct(ctx context.Context, id string, fn UpdateFunc) (*model.Product, error)

	// GetPriceHistory returns a product's price history, oldest first.
	GetPriceHistory(ctx context.Context, id string) ([]model.PricePoint, error)
}
