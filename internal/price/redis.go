package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/observability"
)

// DefaultRedisPrefix namespaces price keys.
const DefaultRedisPrefix = "eth-tax-ledger:price:"

// RedisCache shares resolved prices across runs and processes.
// Redis failures degrade to calling the wrapped oracle.
type RedisCache struct {
	next   Oracle
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Entry
}

var _ Oracle = (*RedisCache)(nil)

// NewRedisCache connects to addr and wraps next. A non-positive ttl keeps
// keys without expiry.
func NewRedisCache(ctx context.Context, addr string, next Oracle, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: DefaultRedisPrefix,
		log:    logger.Get().WithComponent("redis_price_cache"),
	}, nil
}

// PriceAt returns the shared cached price or asks next and stores the result.
func (r *RedisCache) PriceAt(ctx context.Context, ts time.Time, pair string) (float64, error) {
	key := r.prefix + cacheKey(pair, ts)

	val, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if p, perr := strconv.ParseFloat(val, 64); perr == nil {
			observability.RecordPriceLookup("redis", "hit", 0)
			return p, nil
		}
		r.log.WithField("key", key).Warn("Discarding unparsable cached price")
	case errors.Is(err, redis.Nil):
		observability.RecordPriceLookup("redis", "miss", 0)
	default:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		observability.RecordPriceLookup("redis", "error", 0)
		r.log.WithError(err).Warn("Redis get failed, falling back to oracle")
	}

	p, err := r.next.PriceAt(ctx, ts, pair)
	if err != nil {
		return 0, err
	}

	if err := r.client.Set(ctx, key, strconv.FormatFloat(p, 'f', -1, 64), r.ttl).Err(); err != nil {
		r.log.WithError(err).Warn("Redis set failed")
	}
	return p, nil
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
