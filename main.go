package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docsync/config"
	"docsync/config/database"
	"docsync/internal/document/repository"
	"docsync/middleware"
	"docsync/pkg/logger"
	"docsync/pkg/metrics"
	"docsync/router"
	"docsync/socket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		logger.Init("info")
		logger.Sugar.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer closeStore()

	limiter, closeLimiter := openLimiter(ctx, cfg)
	defer closeLimiter()

	hub := socket.NewHub()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(repo, hub, cfg, limiter, reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Sugar.Infof("Go Backend listening on %s (store=%s, limiter=%s)", srv.Addr, cfg.Store.Driver, limiter.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not closed by srv.Shutdown.
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Failed to shut down cleanly: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(db), func() { db.Close() }, nil

	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.Timeout)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Sugar.Errorf("Failed to disconnect from MongoDB: %v", err)
			}
		}
		store, err := repository.NewMongoStore(ctx, client.Database(cfg.MongoDB.Database))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return store, disconnect, nil

	default:
		logger.Sugar.Warn("Using the in-memory store; documents are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

// openLimiter prefers a Redis limiter shared across instances and falls back
// to per-process buckets when Redis is not configured or unreachable.
func openLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func()) {
	memory := middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	if cfg.Redis.Addr == "" {
		return memory, func() {}
	}
	client, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Sugar.Warnf("Failed to connect to Redis, rate limiting in memory: %v", err)
		return memory, func() {}
	}
	return middleware.NewRedisLimiter(client, cfg.RateLimit.RPS, cfg.RateLimit.Burst, time.Second), func() { client.Close() }
}
