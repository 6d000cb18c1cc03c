// Package pricing implements the dynamic pricing formula used by the
// storefront to re-price products over time.
//
// The engine combines four premiums on top of a product's base price:
//   - Scarcity: tiered bonus when stock runs low
//   - Demand: linear in the simulated demand level, capped at +30%
//   - Peak hours: small bonus during the evening shopping window
//   - Behavior: bonus for shoppers with a high behavior score
//
// The summed multiplier is clamped to [MinMultiplier, MaxMultiplier] so the
// price never strays far from the base price. Results are rounded to cents.
//
// All monetary values use shopspring/decimal, never float64.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

var (
	// ErrInvalidInput is returned when a product or factor set cannot be
	// priced (non-positive base price, negative stock or demand, bad hour).
	ErrInvalidInput = errors.New("pricing: invalid input")

	// MinMultiplier is the lowest allowed price multiplier.
	MinMultiplier = decimal.NewFromFloat(0.7)

	// MaxMultiplier is the highest allowed price multiplier.
	MaxMultiplier = decimal.NewFromFloat(1.5)

	// MaterialThreshold is the smallest price movement that gets applied.
	// Moves of this size or less are ignored.
	MaterialThreshold = decimal.NewFromFloat(0.01)

	// PriceScale is the number of decimal places prices are rounded to.
	PriceScale int32 = 2
)

// Premiums added to the multiplier.
var (
	lowStockPremium     = decimal.NewFromFloat(0.15)
	veryLowStockPremium = decimal.NewFromFloat(0.25)
	maxDemandPremium    = decimal.NewFromFloat(0.3)
	peakHourPremium     = decimal.NewFromFloat(0.05)
	highBehaviorPremium = decimal.NewFromFloat(0.10)
	hundred             = decimal.NewFromInt(100)
)

// Thresholds that switch premiums on.
const (
	lowStockThreshold    = 10
	veryLowStockCutoff   = 5
	peakStartHour        = 18
	peakEndHour          = 21 // inclusive
	highBehaviorCutoff   = 0.8
	increasedDemandLevel = 50
)

// Price change reasons.
const (
	ReasonLimitedStock     = "High demand, limited stock"
	ReasonIncreasedDemand  = "Increased demand"
	ReasonMarketAdjustment = "Market adjustment"
	ReasonStockReplenished = "Stock replenished"
	ReasonPriceStable      = "Price stable"
)

// Demand simulation constants.
const (
	baselineViews        = 50
	maxDemandJitter      = 0.5
	lowStockDemandCutoff = 20
)

// RandSource supplies uniformly distributed floats in [0, 1).
// *math/rand.Rand and *math/rand/v2.Rand both satisfy it.
type RandSource interface {
	Float64() float64
}

// Engine computes dynamic prices. It is stateless: every input is passed as
// an argument, so a single value can be shared by any number of goroutines.
type Engine struct{}

// NewEngine creates a pricing engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Multiplier returns the clamped price multiplier for the given inputs.
// Stock is read from the product, everything else from factors.
func (e *Engine) Multiplier(p model.Product, f model.PricingFactors) (decimal.Decimal, error) {
	if err := validate(p, f); err != nil {
		return decimal.Zero, err
	}

	m := decimal.NewFromInt(1)

	// Scarcity tiers never stack. Exactly veryLowStockCutoff units sits
	// between the tiers and earns neither premium.
	switch {
	case p.Stock < veryLowStockCutoff:
		m = m.Add(veryLowStockPremium)
	case p.Stock > veryLowStockCutoff && p.Stock < lowStockThreshold:
		m = m.Add(lowStockPremium)
	}

	demand := decimal.NewFromInt(int64(f.DemandLevel)).Div(hundred)
	m = m.Add(decimal.Min(demand, maxDemandPremium))

	if f.TimeOfDay >= peakStartHour && f.TimeOfDay <= peakEndHour {
		m = m.Add(peakHourPremium)
	}

	if f.UserBehavior > highBehaviorCutoff {
		m = m.Add(highBehaviorPremium)
	}

	if m.LessThan(MinMultiplier) {
		return MinMultiplier, nil
	}
	if m.GreaterThan(MaxMultiplier) {
		return MaxMultiplier, nil
	}
	return m, nil
}

// ComputePrice returns basePrice × multiplier rounded half-up to cents.
//
// The result depends only on the base price, stock, demand level, hour and
// behavior score. It never reads CurrentPrice or PriceHistory, so repeated
// evaluation does not drift.
func (e *Engine) ComputePrice(p model.Product, f model.PricingFactors) (decimal.Decimal, error) {
	m, err := e.Multiplier(p, f)
	if err != nil {
		return decimal.Zero, err
	}
	return p.BasePrice.Mul(m).Round(PriceScale), nil
}

// ExplainPriceChange returns a short human-readable reason for moving from
// oldPrice to newPrice. Any decrease is reported as a restock regardless of
// its actual cause.
func (e *Engine) ExplainPriceChange(oldPrice, newPrice decimal.Decimal, f model.PricingFactors) string {
	switch {
	case newPrice.GreaterThan(oldPrice):
		if f.StockLevel < lowStockThreshold {
			return ReasonLimitedStock
		}
		if f.DemandLevel > increasedDemandLevel {
			return ReasonIncreasedDemand
		}
		return ReasonMarketAdjustment
	case newPrice.LessThan(oldPrice):
		return ReasonStockReplenished
	default:
		return ReasonPriceStable
	}
}

// SimulateDemand produces a synthetic demand level for a product:
//
//	round(50 × stockFactor × priceFactor × (1 + r)),  r ∈ [0, 0.5)
//
// Scarce products (stock < 20) and discounted products (current below base)
// attract more interest. The randomness comes from rng so tests can pin it.
func (e *Engine) SimulateDemand(p model.Product, rng RandSource) (int, error) {
	if !p.BasePrice.IsPositive() {
		return 0, fmt.Errorf("%w: base price must be positive, got %s", ErrInvalidInput, p.BasePrice)
	}
	if p.Stock < 0 {
		return 0, fmt.Errorf("%w: stock must be non-negative, got %d", ErrInvalidInput, p.Stock)
	}

	jitter := rng.Float64() * maxDemandJitter

	stockFactor := 1.0
	if p.Stock < lowStockDemandCutoff {
		stockFactor = 1.5
	}

	priceFactor := 0.8
	if p.CurrentPrice.LessThan(p.BasePrice) {
		priceFactor = 1.3
	}

	return int(math.Round(baselineViews * stockFactor * priceFactor * (1 + jitter))), nil
}

// IsMaterial reports whether moving from oldPrice to newPrice is large
// enough to be applied and recorded.
func IsMaterial(oldPrice, newPrice decimal.Decimal) bool {
	return newPrice.Sub(oldPrice).Abs().GreaterThan(MaterialThreshold)
}

func validate(p model.Product, f model.PricingFactors) error {
	if !p.BasePrice.IsPositive() {
		return fmt.Errorf("%w: base price must be positive, got %s", ErrInvalidInput, p.BasePrice)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be non-negative, got %d", ErrInvalidInput, p.Stock)
	}
	if f.DemandLevel < 0 {
		return fmt.Errorf("%w: demand level must be non-negative, got %d", ErrInvalidInput, f.DemandLevel)
	}
	if f.TimeOfDay < 0 || f.TimeOfDay > 23 {
		return fmt.Errorf("%w: hour must be in 0-23, got %d", ErrInvalidInput, f.TimeOfDay)
	}
	return nil
}
