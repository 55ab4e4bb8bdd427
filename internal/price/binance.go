package price

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/observability"
)

// Default Binance oracle configuration.
const (
	DefaultBinanceURL        = "https://api.binance.com"
	DefaultRequestsPerSecond = 10
	DefaultTimeout           = 15 * time.Second
)

// BinanceOptions configures BinanceOracle.
type BinanceOptions struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Timeout           time.Duration
}

// BinanceOracle reads 1-minute spot klines.
type BinanceOracle struct {
	client  *binance.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

var _ Oracle = (*BinanceOracle)(nil)

// NewBinanceOracle creates an oracle against the public spot API.
func NewBinanceOracle(opts BinanceOptions) *BinanceOracle {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBinanceURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	client := binance.NewClient("", "")
	client.BaseURL = opts.BaseURL
	client.HTTPClient = opts.HTTPClient

	return &BinanceOracle{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Get().WithComponent("binance_oracle"),
	}
}

// PriceAt returns the open of the 1m candle starting at ts's minute.
func (o *BinanceOracle) PriceAt(ctx context.Context, ts time.Time, pair string) (float64, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	start := time.Now()
	klines, err := o.client.NewKlinesService().
		Symbol(pair).
		Interval("1m").
		StartTime(Minute(ts).UnixMilli()).
		Limit(1).
		Do(ctx)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		observability.RecordPriceLookup("binance", "error", elapsed)
		return 0, fmt.Errorf("binance klines %s: %w", pair, err)
	}
	if len(klines) == 0 {
		observability.RecordPriceLookup("binance", "empty", elapsed)
		return 0, fmt.Errorf("%w: %s at %s", ErrNoPriceData, pair, Minute(ts).Format(time.RFC3339))
	}

	price, err := strconv.ParseFloat(klines[0].Open, 64)
	if err != nil {
		observability.RecordPriceLookup("binance", "error", elapsed)
		return 0, fmt.Errorf("parse open price %q: %w", klines[0].Open, err)
	}

	observability.RecordPriceLookup("binance", "ok", elapsed)
	o.log.WithFields(logger.Fields{"pair": pair, "minute": Minute(ts).Unix(), "price": price}).Debug("Fetched kline")
	return price, nil
}
