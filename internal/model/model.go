// Package model defines the core domain types shared across the pricing engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InitialPriceReason labels the first entry of every price history.
const InitialPriceReason = "Initial price"

// PricePoint is an immutable record of a price and the reason it was set.
// Once appended to a product's history it is never modified or removed.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Reason    string          `json:"reason"`
}

// Product is a catalog entry whose price is recomputed over time.
//
// BasePrice never changes after creation. CurrentPrice is only ever written
// by the repricer, and the last PriceHistory entry always equals the
// CurrentPrice it was appended with.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Tags         []string        `json:"tags"`
	Image        string          `json:"image"`
	BasePrice    decimal.Decimal `json:"base_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Stock        int             `json:"stock"`
	Demand       int             `json:"demand"`
	PriceHistory []PricePoint    `json:"price_history"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p Product) Clone() Product {
	c := p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.PriceHistory != nil {
		c.PriceHistory = append([]PricePoint(nil), p.PriceHistory...)
	}
	return c
}

// PricingFactors is the transient input to one pricing evaluation.
// It is built fresh for every tick and never persisted.
type PricingFactors struct {
	StockLevel   int     `json:"stock_level"`
	DemandLevel  int     `json:"demand_level"`
	UserBehavior float64 `json:"user_behavior"` // 0.0–1.0
	TimeOfDay    int     `json:"time_of_day"`   // hour, 0–23
	Seasonality  float64 `json:"seasonality"`   // reserved, always 1
}

// CartItem pairs a product with a positive quantity.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"` // product's current price at read time
	LineTotal decimal.Decimal `json:"line_total"`
}

// Cart is a shopper's basket. Totals are derived on every read from the
// products' live prices.
type Cart struct {
	ID         string          `json:"id"`
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PriceChange summarises the most recent movement of one product's price.
type PriceChange struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Change    decimal.Decimal `json:"change"` // signed: latest - previous
	Reason    string          `json:"reason"`
	At        time.Time       `json:"at"`
}

// DashboardStats aggregates catalog-wide pricing analytics.
type DashboardStats struct {
	TotalProducts      int             `json:"total_products"`
	AvgPriceChangePct  decimal.Decimal `json:"avg_price_change_pct"`
	LowStockProducts   int             `json:"low_stock_products"`
	HighDemandProducts int             `json:"high_demand_products"`
	TotalViews         int             `json:"total_views"`
	RecentChanges      []PriceChange   `json:"recent_changes"`
}
