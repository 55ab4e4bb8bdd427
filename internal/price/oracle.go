// Package price resolves historical USD-denominated prices for events.
package price

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Errors returned by oracles.
var (
	ErrNoPriceData = errors.New("no price data available")
	ErrUnknownPair = errors.New("unknown pair")
)

// Oracle returns the open price of the 1-minute candle containing ts.
type Oracle interface {
	PriceAt(ctx context.Context, ts time.Time, pair string) (float64, error)
}

// Minute truncates ts to the start of its 1-minute candle in UTC.
func Minute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// cacheKey identifies a pair and candle.
func cacheKey(pair string, ts time.Time) string {
	return pair + ":" + strconv.FormatInt(Minute(ts).Unix(), 10)
}
