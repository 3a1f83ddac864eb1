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

	"github.com/vaultkit/vault-engine/internal/alert"
	"github.com/vaultkit/vault-engine/internal/ceiling"
	"github.com/vaultkit/vault-engine/internal/config"
	"github.com/vaultkit/vault-engine/internal/metrics"
	"github.com/vaultkit/vault-engine/internal/oracle"
	"github.com/vaultkit/vault-engine/internal/store"
	"github.com/vaultkit/vault-engine/internal/vault"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(
		"service", cfg.Service.Name,
		"env", cfg.Service.Env,
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx, pool); err != nil {
				slog.Error("database migration failed", "err", err)
				os.Exit(1)
			}
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Price feed, shared through Redis when configured ---
	var feed oracle.Feed = oracle.NewMemoryFeed()
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		feed = oracle.NewRedisFeed(rdb)

		// Wrap the persistent store with a read-through cache.
		if cfg.Postgres.URL != "" {
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
		slog.Info("Redis price feed enabled")
	}

	// --- Alerts ---
	var alerts alert.Publisher = alert.NewLogPublisher(logger)
	if cfg.NATS.URL != "" {
		p, err := alert.NewNATSPublisher(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			slog.Error("nats connection failed", "err", err)
			os.Exit(1)
		}
		alerts = p
		slog.Info("publishing alerts to NATS", "subject", alert.SubjectPrefix+">")
	}
	cleanup = append(cleanup, alerts.Close)

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Calculator and ceilings ---
	policy, err := cfg.CalculatorPolicy()
	if err != nil {
		slog.Error("invalid policy", "err", err)
		os.Exit(1)
	}
	calc, err := vaultmath.NewCalculator(policy)
	if err != nil {
		slog.Error("invalid policy", "err", err)
		os.Exit(1)
	}
	guard := ceiling.NewGuard(cfg.MaxGlobalDebt())

	// --- Seed collateral types ---
	seeds, err := cfg.SeedCollateralTypes(time.Now().UTC())
	if err != nil {
		slog.Error("invalid collateral types", "err", err)
		os.Exit(1)
	}
	if n, err := store.SeedCollateralTypes(ctx, st, seeds); err != nil {
		slog.Warn("collateral types not seeded", "err", err)
	} else if n > 0 {
		slog.Info("seeded collateral types", "count", n)
	}

	// --- WebSocket hub ---
	wsHub := vault.NewWSHub()
	go wsHub.Run(ctx)

	// --- Vault service ---
	vaultSvc := vault.NewService(vault.Deps{
		Store:       st,
		Feed:        feed,
		MaxPriceAge: cfg.Oracle.MaxPriceAge,
		Calculator:  calc,
		Ceiling:     guard,
		Alerts:      alerts,
		Hub:         wsHub,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
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
		fmt.Fprintf(w, `{"status":"ok","service":%q}`, cfg.Service.Name)
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", vaultSvc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("vault-engine listening", "port", cfg.Service.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down vault-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("vault-engine stopped")
}
