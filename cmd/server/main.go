package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dynamicmart/pricing-engine/internal/cart"
	"github.com/dynamicmart/pricing-engine/internal/catalog"
	"github.com/dynamicmart/pricing-engine/internal/config"
	"github.com/dynamicmart/pricing-engine/internal/metrics"
	"github.com/dynamicmart/pricing-engine/internal/pricing"
	"github.com/dynamicmart/pricing-engine/internal/repricer"
	"github.com/dynamicmart/pricing-engine/internal/scheduler"
	"github.com/dynamicmart/pricing-engine/internal/store"
	"github.com/dynamicmart/pricing-engine/internal/storefront"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Storage.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Storage.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Storage.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Storage.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := storefront.NewWSHub()
	go wsHub.Run(hubCtx)

	// --- Pricing ---
	engine := pricing.NewEngine()
	rng := pricing.NewLockedRand(cfg.Pricing.RandSeed)
	rep := repricer.New(st, engine, rng,
		repricer.WithLocation(cfg.Pricing.Location),
		repricer.WithBehaviorScorer(repricer.ConstantBehavior(cfg.Pricing.UserBehavior)),
		repricer.WithNotifier(wsHub),
	)
	sched := scheduler.New(rep, cfg.Pricing.MinInterval, cfg.Pricing.MaxInterval, rng)

	// --- Catalog ---
	catalogSvc := catalog.NewService(st)
	if cfg.Pricing.SeedDemo {
		ids, err := catalogSvc.SeedDemo(context.Background())
		if err != nil {
			slog.Error("demo seeding failed", "err", err)
			os.Exit(1)
		}
		slog.Info("demo catalog seeded", "created", len(ids))
	}
	if cfg.Pricing.AutoWatch {
		products, err := st.ListProducts(context.Background())
		if err != nil {
			slog.Error("list products failed", "err", err)
			os.Exit(1)
		}
		for _, p := range products {
			sched.Watch(p.ID)
		}
		slog.Info("scheduled repricing started",
			"products", len(products),
			"min_interval", cfg.Pricing.MinInterval.String(),
			"max_interval", cfg.Pricing.MaxInterval.String(),
		)
	}

	// --- Storefront service ---
	shop := storefront.NewService(catalogSvc, cart.NewService(st), engine, rep, sched)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pricing-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates. Long-lived, so it
		// sits outside the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Catalog.
			r.Get("/products", shop.ListProducts)
			r.Post("/products", shop.CreateProduct)
			r.Get("/products/{productID}", shop.GetProduct)
			r.Get("/products/{productID}/history", shop.GetHistory)
			r.Post("/products/{productID}/view", shop.RecordView)
			r.Get("/categories", shop.ListCategories)
			r.Get("/dashboard", shop.GetDashboard)

			// Pricing.
			r.Post("/pricing/quote", shop.Quote)
			r.Post("/products/{productID}/reprice", shop.Reprice)
			r.Post("/products/{productID}/watch", shop.Watch)
			r.Delete("/products/{productID}/watch", shop.Unwatch)

			// Carts.
			r.Post("/carts", shop.CreateCart)
			r.Get("/carts/{cartID}", shop.GetCart)
			r.Post("/carts/{cartID}/items", shop.AddItem)
			r.Put("/carts/{cartID}/items/{productID}", shop.UpdateItem)
			r.Delete("/carts/{cartID}/items/{productID}", shop.RemoveItem)
			r.Post("/carts/{cartID}/checkout", shop.Checkout)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("pricing-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down pricing-engine...")
	sched.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stopHub()
	fmt.Println("pricing-engine stopped")
}
