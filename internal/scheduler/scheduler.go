// Package scheduler drives periodic repricing with one independent,
// cancelable task per product.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dynamicmart/pricing-engine/internal/metrics"
	"github.com/dynamicmart/pricing-engine/internal/pricing"
	"github.com/dynamicmart/pricing-engine/internal/repricer"
	"github.com/dynamicmart/pricing-engine/internal/store"
)

// Repricer runs one pricing tick for a product.
type Repricer interface {
	Reprice(ctx context.Context, productID string) (repricer.Result, error)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the repricing tasks. Each task sleeps for its own random
// interval in [min, max) before every tick, so products never tick in
// lockstep.
type Scheduler struct {
	repricer Repricer
	min, max time.Duration
	rng      pricing.RandSource

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a Scheduler. If max <= min every task ticks every min.
func New(r Repricer, min, max time.Duration, rng pricing.RandSource) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		repricer: r,
		min:      min,
		max:      max,
		rng:      rng,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*task),
	}
}

// Watch starts repricing a product and returns a func that stops it.
// Watching an already watched product keeps the existing task.
func (s *Scheduler) Watch(productID string) (stop func()) {
	stop = func() { s.Unwatch(productID) }

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return stop
	}
	if _, ok := s.tasks[productID]; ok {
		return stop
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[productID] = t
	metrics.ScheduledProducts.Set(float64(len(s.tasks)))

	go s.run(ctx, productID, t)
	return stop
}

// Unwatch stops a product's task and waits for it to exit. It reports
// whether the product was being watched.
func (s *Scheduler) Unwatch(productID string) bool {
	s.mu.Lock()
	t, ok := s.tasks[productID]
	if ok {
		delete(s.tasks, productID)
		metrics.ScheduledProducts.Set(float64(len(s.tasks)))
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// Watching reports whether a product currently has a task.
func (s *Scheduler) Watching(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[productID]
	return ok
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task, waits for them to exit, and rejects further
// Watch calls.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	metrics.ScheduledProducts.Set(0)
	s.mu.Unlock()

	for _, t := range tasks {
		<-t.done
	}
}

func (s *Scheduler) run(ctx context.Context, productID string, t *task) {
	defer close(t.done)

	for {
		timer := time.NewTimer(s.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, err := s.repricer.Reprice(ctx, productID)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			slog.Warn("product gone, stopping repricing", "product", productID)
			s.forget(productID, t)
			return
		case ctx.Err() != nil:
			return
		default:
			// Keep the previous price and try again next cycle.
			slog.Warn("repricing tick skipped", "product", productID, "err", err)
		}
	}
}

// forget removes t from the task table if it is still the registered task.
func (s *Scheduler) forget(productID string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[productID] == t {
		delete(s.tasks, productID)
		metrics.ScheduledProducts.Set(float64(len(s.tasks)))
	}
}

func (s *Scheduler) interval() time.Duration {
	if s.max <= s.min {
		return s.min
	}
	span := float64(s.max - s.min)
	return s.min + time.Duration(s.rng.Float64()*span)
}
