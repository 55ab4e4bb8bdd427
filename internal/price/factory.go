package price

import (
	"context"
	"fmt"

	"eth-tax-ledger/internal/config"
)

// FromConfig builds the oracle chain selected by cfg: the provider, an
// in-process cache in front of it and, when an address is configured, a
// shared Redis cache in between. The returned close func releases Redis.
func FromConfig(ctx context.Context, cfg config.PricingConfig) (Oracle, func() error, error) {
	var provider Oracle
	switch cfg.Provider {
	case config.ProviderBinance:
		provider = NewBinanceOracle(BinanceOptions{
			BaseURL:           cfg.BaseURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		})
	case config.ProviderStatic:
		provider = NewStaticOracle(cfg.Static)
	default:
		return nil, nil, fmt.Errorf("unknown price provider %q", cfg.Provider)
	}

	closer := func() error { return nil }
	if cfg.RedisAddr != "" {
		shared, err := NewRedisCache(ctx, cfg.RedisAddr, provider, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		provider = shared
		closer = shared.Close
	}

	return NewCachedOracle(provider, cfg.CacheTTL), closer, nil
}
