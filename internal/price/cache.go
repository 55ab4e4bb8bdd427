package price

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"eth-tax-ledger/internal/observability"
)

// CachedOracle memoizes another oracle in process, keyed by pair and minute.
type CachedOracle struct {
	next  Oracle
	cache *cache.Cache
}

var _ Oracle = (*CachedOracle)(nil)

// NewCachedOracle wraps next. A non-positive ttl keeps entries forever.
func NewCachedOracle(next Oracle, ttl time.Duration) *CachedOracle {
	expiration, cleanup := ttl, 2*ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &CachedOracle{
		next:  next,
		cache: cache.New(expiration, cleanup),
	}
}

// PriceAt returns the cached price or asks next. Failures are not cached.
func (c *CachedOracle) PriceAt(ctx context.Context, ts time.Time, pair string) (float64, error) {
	key := cacheKey(pair, ts)
	if v, ok := c.cache.Get(key); ok {
		observability.RecordPriceLookup("memory", "hit", 0)
		return v.(float64), nil
	}
	observability.RecordPriceLookup("memory", "miss", 0)

	p, err := c.next.PriceAt(ctx, ts, pair)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

// Len returns the number of cached entries.
func (c *CachedOracle) Len() int {
	return c.cache.ItemCount()
}
