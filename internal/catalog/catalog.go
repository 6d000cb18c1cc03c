// Package catalog manages the product catalog: creation, search, views,
// and the pricing dashboard.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/model"
	"github.com/dynamicmart/pricing-engine/internal/store"
)

// AllCategories matches every product in Search and leads Categories.
const AllCategories = "all"

// Stock status labels shown next to a product.
const (
	StatusLimited = "Limited Stock"
	StatusLow     = "Low Stock"
	StatusInStock = "In Stock"
)

// Dashboard thresholds.
const (
	dashboardLowStock   = 10
	dashboardHighDemand = 60
	recentChangesLimit  = 5
)

// ErrInvalidProduct is returned when a new product fails validation.
var ErrInvalidProduct = errors.New("catalog: invalid product")

// CreateInput describes a product to add to the catalog.
type CreateInput struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Category    string          `json:"category" validate:"required,max=100,ne=all"`
	Tags        []string        `json:"tags" validate:"dive,required,max=50"`
	Image       string          `json:"image" validate:"max=500"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Demand      int             `json:"demand" validate:"gte=0"`
}

// Service is the catalog's business logic.
type Service struct {
	store    store.Store
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a catalog service over st.
func NewService(st store.Store) *Service {
	return &Service{
		store:    st,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Create validates in and stores a new product priced at its base price,
// with a single "Initial price" history entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	// Money is stored in cents, so the check runs on the rounded price.
	price := in.BasePrice.Round(2)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: base price must be at least 0.01, got %s", ErrInvalidProduct, in.BasePrice)
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	now := s.now().UTC()
	p := &model.Product{
		ID:           id,
		Name:         in.Name,
		Description:  in.Description,
		Category:     in.Category,
		Tags:         tags,
		Image:        in.Image,
		BasePrice:    price,
		CurrentPrice: price,
		Stock:        in.Stock,
		Demand:       in.Demand,
		PriceHistory: []model.PricePoint{{
			Timestamp: now,
			Price:     price,
			Reason:    model.InitialPriceReason,
		}},
		CreatedAt: now,
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("product created",
		"id", p.ID,
		"name", p.Name,
		"base_price", p.BasePrice.String(),
		"stock", p.Stock,
	)
	return p, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id string) (*model.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// History returns a product's price history, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]model.PricePoint, error) {
	return s.store.GetPriceHistory(ctx, id)
}

// Search returns products whose name or description contains query
// (case-insensitive) and whose category matches. An empty query matches
// everything; an empty category or "all" matches every category.
func (s *Service) Search(ctx context.Context, query, category string) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matched := make([]model.Product, 0, len(products))
	for _, p := range products {
		if category != "" && category != AllCategories && p.Category != category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		matched = append(matched, p)
	}
	return matched, nil
}

// Categories returns "all" followed by each distinct category in the order
// it first appears in the catalog.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	categories := []string{AllCategories}
	for _, p := range products {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	return categories, nil
}

// RecordView counts one shopper looking at a product as one unit of demand.
func (s *Service) RecordView(ctx context.Context, id string) (*model.Product, error) {
	return s.store.UpdateProduct(ctx, id, func(p *model.Product) error {
		p.Demand++
		return nil
	})
}

// Dashboard computes catalog-wide pricing analytics.
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.DashboardStats{
		TotalProducts:     len(products),
		AvgPriceChangePct: decimal.Zero,
		RecentChanges:     []model.PriceChange{},
	}

	hundred := decimal.NewFromInt(100)
	sumPct := decimal.Zero
	for _, p := range products {
		if p.BasePrice.IsPositive() {
			sumPct = sumPct.Add(p.CurrentPrice.Sub(p.BasePrice).Div(p.BasePrice).Mul(hundred))
		}
		if p.Stock <= dashboardLowStock {
			stats.LowStockProducts++
		}
		if p.Demand > dashboardHighDemand {
			stats.HighDemandProducts++
		}
		stats.TotalViews += p.Demand

		if n := len(p.PriceHistory); n > 1 {
			latest, previous := p.PriceHistory[n-1], p.PriceHistory[n-2]
			stats.RecentChanges = append(stats.RecentChanges, model.PriceChange{
				ProductID: p.ID,
				Name:      p.Name,
				Change:    latest.Price.Sub(previous.Price),
				Reason:    latest.Reason,
				At:        latest.Timestamp,
			})
		}
	}

	if len(products) > 0 {
		stats.AvgPriceChangePct = sumPct.Div(decimal.NewFromInt(int64(len(products)))).Round(1)
	}

	sort.SliceStable(stats.RecentChanges, func(i, j int) bool {
		return stats.RecentChanges[i].Change.Abs().GreaterThan(stats.RecentChanges[j].Change.Abs())
	})
	if len(stats.RecentChanges) > recentChangesLimit {
		stats.RecentChanges = stats.RecentChanges[:recentChangesLimit]
	}
	return stats, nil
}

// StockStatus labels a stock level for display.
func StockStatus(stock int) string {
	switch {
	case stock <= 5:
		return StatusLimited
	case stock <= 15:
		return StatusLow
	default:
		return StatusInStock
	}
}
