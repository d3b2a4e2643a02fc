package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spectcast/identity/internal/app/migrate"
	httpx "github.com/spectcast/identity/internal/http"
	"github.com/spectcast/identity/internal/repository"
	pgstore "github.com/spectcast/identity/internal/repository/postgres"
	redisstore "github.com/spectcast/identity/internal/repository/redis"
	"github.com/spectcast/identity/internal/service/account"
	"github.com/spectcast/identity/internal/service/auth"
	"github.com/spectcast/identity/internal/service/events"
	"github.com/spectcast/identity/internal/ws"
	"github.com/spectcast/identity/pkg/config"
	"github.com/spectcast/identity/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("identity", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open account store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	hub := ws.NewHub()
	eventSvc := events.New(hub, log)
	accountSvc := account.New(store, eventSvc, log, cfg)
	authSvc := auth.New(accountSvc, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, accountSvc, authSvc, eventSvc, limiter, cfg.GatewayToken, store.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("identity server starting", "addr", cfg.Addr, "store", cfg.StoreBackend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("identity server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore builds the configured single-key store backend. The cleanup
// func releases connections on shutdown.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.AccountStore, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := runner.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	case "redis", "":
		store, err := redisstore.New(redisstore.Config{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPassword,
			DB:              cfg.RedisDB,
			ReplicaAddr:     cfg.RedisReplicaAddr,
			KeyPrefix:       cfg.KeyPrefix,
			ConsistentReads: cfg.ConsistentReads,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, errors.New("unknown store backend " + cfg.StoreBackend)
	}
}
