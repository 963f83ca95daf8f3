package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	balanceKeyPrefix = "yolo:balance:"
	balanceTTL       = 5 * time.Minute
	cacheOpTimeout   = time.Second
)

// RedisCache is a cache-aside balance cache. Misses and Redis errors both
// fall through to the store; a stale entry is bounded by the TTL plus the
// invalidation on every write.
type RedisCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisCache(rdb *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, log: log.With().Str("component", "balance-cache").Logger()}
}

func (c *RedisCache) GetBalance(ctx context.Context, userID string) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	v, err := c.rdb.Get(ctx, balanceKeyPrefix+userID).Result()
	if err != nil {
		return 0, false
	}
	b, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return b, true
}

func (c *RedisCache) SetBalance(ctx context.Context, userID string, balance int) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, balanceKeyPrefix+userID, strconv.Itoa(balance), balanceTTL).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("balance cache set failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, balanceKeyPrefix+userID).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("balance cache invalidate failed")
	}
}
