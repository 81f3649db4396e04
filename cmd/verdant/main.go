package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/verdant-crm/verdant/internal/accounts"
	"github.com/verdant-crm/verdant/internal/app"
	"github.com/verdant-crm/verdant/internal/migrate"
	"github.com/verdant-crm/verdant/internal/platform/cache"
	"github.com/verdant-crm/verdant/internal/platform/db"
	"github.com/verdant-crm/verdant/internal/rbac"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var permCache *rbac.PermissionCache
	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		permCache = rbac.NewPermissionCache(redisClient, cfg.PermissionCacheTTL)
	}

	roles := rbac.NewService(rbac.NewRepository(pool), cacheOrNil(permCache), logger)
	users := accounts.NewService(accounts.NewRepository(pool), logger)

	runner := migrate.NewRunner(migrate.Deps{Pool: pool, Roles: roles, Logger: logger}, migrate.Steps())
	if err := runner.Up(ctx); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	if err := migrate.Bootstrap(ctx, users, roles, cfg.BootstrapRole, logger); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("schema up to date")
}

// cacheOrNil avoids handing the service a typed nil behind the interface.
func cacheOrNil(c *rbac.PermissionCache) rbac.Invalidator {
	if c == nil {
		return nil
	}
	return c
}
