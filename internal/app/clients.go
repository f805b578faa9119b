package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/ratelimit"
	"github.com/yungbote/equilix-backend/internal/store"
)

// Clients owns long-lived connections. Either field may be nil.
type Clients struct {
	DB    *gorm.DB
	Redis *goredis.Client
}

func wireClients(cfg *config.Config, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	db, err := store.Open(cfg.Store)
	switch {
	case errors.Is(err, store.ErrDisabled):
		log.Info("invocation store disabled")
		db = nil
	case err != nil:
		return Clients{}, fmt.Errorf("init invocation store: %w", err)
	default:
		log.Info("invocation store opened", "driver", cfg.Store.Driver)
	}
	return Clients{DB: db}, nil
}

// Ping backs the readiness probe.
func (c *Clients) Ping(ctx context.Context) error {
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("store ping: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}

func (c *Clients) Close(log *logger.Logger) {
	if c == nil {
		return
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
		c.Redis = nil
	}
	if c.DB != nil {
		if err := store.Close(c.DB); err != nil {
			log.Warn("store close failed", "error", err)
		}
		c.DB = nil
	}
}

// wireLimiter connects to redis when the redis backend is selected and keeps
// the client on c so Close and Ping see it.
func wireLimiter(ctx context.Context, cfg config.RateLimitConfig, c *Clients, log *logger.Logger) (ratelimit.Limiter, error) {
	if !cfg.Enabled {
		return ratelimit.Noop{}, nil
	}
	switch cfg.Backend {
	case "redis":
		rdb, err := ratelimit.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("init redis rate limiter: %w", err)
		}
		c.Redis = rdb
		log.Info("rate limiter enabled", "backend", "redis", "limit", cfg.Limit, "window", cfg.Window.Duration.String())
		return ratelimit.NewRedis(rdb, cfg.Limit, cfg.Window.Duration), nil
	default:
		log.Info("rate limiter enabled", "backend", "memory", "limit", cfg.Limit, "window", cfg.Window.Duration.String())
		return ratelimit.NewMemory(cfg.Limit, cfg.Window.Duration, nil), nil
	}
}
