package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"caixaforte/backend/internal/domain"
)

type RedisKPICache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisKPICache(ctx context.Context, addr string, ttl time.Duration, logger *zap.Logger) (*RedisKPICache, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisKPICache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *RedisKPICache) Get(ctx context.Context, key string) (*domain.DashboardKPI, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("kpi cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var kpi domain.DashboardKPI
	if err := json.Unmarshal(raw, &kpi); err != nil {
		c.logger.Warn("kpi cache payload corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &kpi, true
}

func (c *RedisKPICache) Set(ctx context.Context, key string, kpi domain.DashboardKPI) {
	raw, err := json.Marshal(kpi)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("kpi cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisKPICache) Close() error {
	return c.client.Close()
}
