package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/store"
)

// DemoProducts is the storefront's starter catalog.
func DemoProducts() []CreateInput {
	price := decimal.RequireFromString
	return []CreateInput{
		{
			ID:          "1",
			Name:        "Premium Wireless Headphones",
			Description: "High-quality noise-canceling wireless headphones with premium sound",
			Category:    "Electronics",
			Tags:        []string{"wireless", "premium", "audio"},
			Image:       "/placeholder.svg",
			BasePrice:   price("299.99"),
			Stock:       15,
			Demand:      45,
		},
		{
			ID:          "2",
			Name:        "Smart Fitness Watch",
			Description: "Advanced fitness tracking with heart rate monitoring and GPS",
			Category:    "Fitness",
			Tags:        []string{"fitness", "smart", "health"},
			Image:       "/placeholder.svg",
			BasePrice:   price("199.99"),
			Stock:       8,
			Demand:      78,
		},
		{
			ID:          "3",
			Name:        "Ergonomic Office Chair",
			Description: "Professional ergonomic chair with lumbar support and adjustable height",
			Category:    "Furniture",
			Tags:        []string{"office", "ergonomic", "furniture"},
			Image:       "/placeholder.svg",
			BasePrice:   price("449.99"),
			Stock:       25,
			Demand:      32,
		},
		{
			ID:          "4",
			Name:        "Portable Bluetooth Speaker",
			Description: "Compact waterproof speaker with 12-hour battery life",
			Category:    "Electronics",
			Tags:        []string{"portable", "waterproof", "audio"},
			Image:       "/placeholder.svg",
			BasePrice:   price("79.99"),
			Stock:       3,
			Demand:      92,
		},
		{
			ID:          "5",
			Name:        "Premium Coffee Maker",
			Description: "Programmable coffee maker with built-in grinder and thermal carafe",
			Category:    "Kitchen",
			Tags:        []string{"coffee", "kitchen", "appliance"},
			Image:       "/placeholder.svg",
			BasePrice:   price("189.99"),
			Stock:       12,
			Demand:      56,
		},
		{
			ID:          "6",
			Name:        "Gaming Mechanical Keyboard",
			Description: "RGB backlit mechanical keyboard with tactile switches",
			Category:    "Gaming",
			Tags:        []string{"gaming", "mechanical", "rgb"},
			Image:       "/placeholder.svg",
			BasePrice:   price("129.99"),
			Stock:       20,
			Demand:      67,
		},
	}
}

// SeedDemo loads the demo catalog, skipping products that already exist.
// It returns the IDs of every demo product.
func (s *Service) SeedDemo(ctx context.Context) ([]string, error) {
	demo := DemoProducts()
	ids := make([]string, 0, len(demo))
	for _, in := range demo {
		if _, err := s.Create(ctx, in); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		ids = append(ids, in.ID)
	}
	return ids, nil
}
