package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

// RedisQuarantineRepository keeps last close times in one hash, field per symbol.
type RedisQuarantineRepository struct {
	client redis.Cmdable
	key    string
	log    zerolog.Logger
}

func NewRedisQuarantineRepository(client redis.Cmdable, prefix string, log zerolog.Logger) *RedisQuarantineRepository {
	return &RedisQuarantineRepository{
		client: client,
		key:    redisKey(prefix, "quarantine"),
		log:    log.With().Str("component", "redis_quarantine").Logger(),
	}
}

// LoadAll skips fields that do not parse as RFC 3339 times.
func (r *RedisQuarantineRepository) LoadAll(ctx context.Context) (map[string]time.Time, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for symbol, v := range raw {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			r.log.Warn().Str("symbol", symbol).Str("value", v).Msg("unparseable quarantine entry skipped")
			continue
		}
		out[symbol] = at
	}
	return out, nil
}

func (r *RedisQuarantineRepository) Save(ctx context.Context, symbol string, at time.Time) error {
	return r.client.HSet(ctx, r.key, symbol, at.UTC().Format(time.RFC3339Nano)).Err()
}

func redisKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

var _ domain.QuarantineStore = (*RedisQuarantineRepository)(nil)
