package main

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sentinel/mpc-engine/internal/api"
	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/cluster"
	"github.com/sentinel/mpc-engine/internal/config"
	"github.com/sentinel/mpc-engine/internal/dispatcher"
	"github.com/sentinel/mpc-engine/internal/events"
	"github.com/sentinel/mpc-engine/internal/metrics"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/monitor"
	"github.com/sentinel/mpc-engine/internal/orchestrator"
	"github.com/sentinel/mpc-engine/internal/sealing"
	"github.com/sentinel/mpc-engine/internal/store"
)

func run(parent context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	// st serves the API and the dispatcher; primary is what the cluster
	// reads records from and never goes through the cache.
	var st, primary store.Store
	var rdb *redis.Client
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st, primary = pg, pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis record cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
		primary = st
	}

	// --- Event sinks ---
	wsHub := events.NewWSHub()
	sinks := events.Fanout{wsHub}
	if rdb != nil {
		sinks = append(sinks, events.NewRedisStream(rdb, cfg.RedisStream, cfg.StreamLen))
		slog.Info("publishing events to Redis stream", "stream", cfg.RedisStream)
	}

	issuer := capability.NewIssuer(cfg.CallbackSecret, cfg.CallbackTokenTTL)
	disp := dispatcher.New(st, issuer, sinks)

	// --- Cluster ---
	var cl orchestrator.Cluster
	var clusterKey *model.ID
	switch cfg.ClusterMode {
	case config.ClusterLocal:
		enc, err := sealing.NewEnclave(cfg.ClusterSecret)
		if err != nil {
			return fmt.Errorf("cluster key: %w", err)
		}
		local := cluster.NewLocal(ctx, primary, enc, disp, cfg.ClusterWorkers, cfg.ClusterQueueSize)
		cleanup = append(cleanup, local.Stop)
		key := local.PublicKey()
		clusterKey = &key
		cl = local
		slog.Info("local cluster started", "workers", cfg.ClusterWorkers, "public_key", key)
	case config.ClusterRemote:
		cl = cluster.NewRemote(cfg.ClusterURL, cfg.PublicURL, cfg.ClusterTimeout)
		slog.Info("using remote cluster", "url", cfg.ClusterURL)
	default:
		slog.Warn("no cluster configured, submissions will be rejected")
	}

	orch := orchestrator.New(st, cl, issuer)

	// --- Stale job monitor ---
	mon := monitor.New(st, cfg.StaleJobAfter)
	if err := mon.Start(ctx, cfg.MonitorSpec); err != nil {
		return err
	}
	cleanup = append(cleanup, mon.Stop)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for browser clients.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"sentinel"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	svc := api.NewService(orch, disp, st, issuer, clusterKey)
	svc.Routes(r, rate.NewLimiter(rate.Limit(cfg.SubmitRPS), cfg.SubmitBurst), wsHub)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: config.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("sentinel listening", "port", cfg.Port, "cluster", cfg.ClusterMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down sentinel...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	fmt.Fprintln(os.Stderr, "sentinel stopped")
	return err
}
