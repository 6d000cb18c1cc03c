// Package repricer applies the pricing engine to stored products, one tick
// at a time.
//
// A tick simulates fresh demand, prices the product, and when the move is
// material commits the new price, demand and a history entry as a single
// update. Everything the tick reads and writes happens inside the store's
// per-product update, so cart activity can never interleave with it.
package repricer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/metrics"
	"github.com/dynamicmart/pricing-engine/internal/model"
	"github.com/dynamicmart/pricing-engine/internal/pricing"
	"github.com/dynamicmart/pricing-engine/internal/store"
)

// DefaultUserBehavior is the placeholder behavior score used until a real
// scoring collaborator is wired in.
const DefaultUserBehavior = 0.5

// Pricer is the subset of the pricing engine a repricer needs.
type Pricer interface {
	ComputePrice(p model.Product, f model.PricingFactors) (decimal.Decimal, error)
	ExplainPriceChange(oldPrice, newPrice decimal.Decimal, f model.PricingFactors) string
	SimulateDemand(p model.Product, rng pricing.RandSource) (int, error)
}

// BehaviorScorer rates how willing the current audience is to pay more for
// a product, in [0, 1].
type BehaviorScorer interface {
	Score(productID string) float64
}

// ConstantBehavior scores every product the same.
type ConstantBehavior float64

func (c ConstantBehavior) Score(string) float64 { return float64(c) }

// Notifier is told about every applied price change.
type Notifier interface {
	NotifyPriceChange(res Result)
}

// Result describes the outcome of one tick.
type Result struct {
	ProductID string               `json:"product_id"`
	OldPrice  decimal.Decimal      `json:"old_price"`
	NewPrice  decimal.Decimal      `json:"new_price"`
	Demand    int                  `json:"demand"`
	Reason    string               `json:"reason,omitempty"`
	Changed   bool                 `json:"changed"`
	Factors   model.PricingFactors `json:"factors"`
	At        time.Time            `json:"at"`
}

// Option configures a Repricer.
type Option func(*Repricer)

// WithClock overrides the wall clock used for timestamps and the hour.
func WithClock(now func() time.Time) Option {
	return func(r *Repricer) { r.now = now }
}

// WithLocation sets the time zone the peak-hour window is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(r *Repricer) { r.loc = loc }
}

// WithBehaviorScorer replaces the constant behavior score.
func WithBehaviorScorer(b BehaviorScorer) Option {
	return func(r *Repricer) { r.behavior = b }
}

// WithNotifier registers a listener for applied price changes.
func WithNotifier(n Notifier) Option {
	return func(r *Repricer) { r.notifier = n }
}

// Repricer runs pricing ticks against a store.
type Repricer struct {
	store    store.Store
	pricer   Pricer
	rng      pricing.RandSource
	now      func() time.Time
	loc      *time.Location
	behavior BehaviorScorer
	notifier Notifier
}

// New creates a Repricer. rng drives demand simulation; pass a seeded
// source for reproducible runs.
func New(st store.Store, pricer Pricer, rng pricing.RandSource, opts ...Option) *Repricer {
	r := &Repricer{
		store:    st,
		pricer:   pricer,
		rng:      rng,
		now:      time.Now,
		loc:      time.Local,
		behavior: ConstantBehavior(DefaultUserBehavior),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reprice runs one tick for a product. A non-material move returns a Result
// with Changed=false and leaves the product untouched. If the engine rejects
// the product the tick is skipped, the previous price kept, and the error
// returned.
func (r *Repricer) Reprice(ctx context.Context, productID string) (Result, error) {
	start := time.Now()
	defer func() { metrics.EvaluationLatency.Observe(time.Since(start).Seconds()) }()

	now := r.now()
	res := Result{ProductID: productID, At: now}

	_, err := r.store.UpdateProduct(ctx, productID, func(p *model.Product) error {
		demand, err := r.pricer.SimulateDemand(*p, r.rng)
		if err != nil {
			return err
		}

		f := model.PricingFactors{
			StockLevel:   p.Stock,
			DemandLevel:  demand,
			UserBehavior: r.behavior.Score(p.ID),
			TimeOfDay:    now.In(r.loc).Hour(),
			Seasonality:  1,
		}

		newPrice, err := r.pricer.ComputePrice(*p, f)
		if err != nil {
			return err
		}

		res.OldPrice = p.CurrentPrice
		res.NewPrice = newPrice
		res.Demand = demand
		res.Factors = f

		if !pricing.IsMaterial(p.CurrentPrice, newPrice) {
			return store.ErrNoChange
		}

		res.Reason = r.pricer.ExplainPriceChange(p.CurrentPrice, newPrice, f)
		res.Changed = true

		p.CurrentPrice = newPrice
		p.Demand = demand
		p.PriceHistory = append(p.PriceHistory, model.PricePoint{
			Timestamp: now,
			Price:     newPrice,
			Reason:    res.Reason,
		})
		return nil
	})

	switch {
	case errors.Is(err, store.ErrNoChange):
		metrics.PriceEvaluations.WithLabelValues("unchanged").Inc()
		return res, nil
	case err != nil:
		metrics.PriceEvaluations.WithLabelValues("error").Inc()
		return Result{ProductID: productID, At: now}, err
	}

	metrics.PriceEvaluations.WithLabelValues("changed").Inc()
	direction := "up"
	if res.NewPrice.LessThan(res.OldPrice) {
		direction = "down"
	}
	metrics.PriceChanges.WithLabelValues(direction).Inc()
	metrics.CurrentPrice.WithLabelValues(productID).Set(res.NewPrice.InexactFloat64())

	slog.Info("price updated",
		"product", productID,
		"old_price", res.OldPrice.String(),
		"new_price", res.NewPrice.String(),
		"demand", res.Demand,
		"reason", res.Reason,
	)

	if r.notifier != nil {
		r.notifier.NotifyPriceChange(res)
	}
	return res, nil
}
