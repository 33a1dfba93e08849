package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"perp-autotrader/internal/domain"
)

// RedisMarketCache stores the latest analysis per symbol as JSON with a TTL.
type RedisMarketCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisMarketCache(client redis.Cmdable, prefix string) *RedisMarketCache {
	return &RedisMarketCache{client: client, prefix: redisKey(prefix, "market")}
}

func (c *RedisMarketCache) key(symbol string) string {
	return c.prefix + ":" + symbol
}

func (c *RedisMarketCache) Get(ctx context.Context, symbol string) (*domain.MarketAnalysis, error) {
	raw, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cached %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var analysis domain.MarketAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", symbol, err)
	}
	return &analysis, nil
}

func (c *RedisMarketCache) Set(ctx context.Context, analysis *domain.MarketAnalysis, ttl time.Duration) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(analysis.Symbol), raw, ttl).Err()
}

var _ domain.MarketCache = (*RedisMarketCache)(nil)
