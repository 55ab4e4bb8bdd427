package price

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Point is one observation of a price series.
type Point struct {
	Time  time.Time
	Price float64
}

// StaticOracle serves fixed prices or in-memory series. It backs offline
// runs and tests.
type StaticOracle struct {
	mu     sync.RWMutex
	fixed  map[string]float64
	series map[string][]Point
}

var _ Oracle = (*StaticOracle)(nil)

// NewStaticOracle creates an oracle returning fixed[pair] for any time.
func NewStaticOracle(fixed map[string]float64) *StaticOracle {
	o := &StaticOracle{
		fixed:  make(map[string]float64, len(fixed)),
		series: make(map[string][]Point),
	}
	for pair, p := range fixed {
		o.fixed[strings.ToUpper(pair)] = p
	}
	return o
}

// SetSeries installs a time series for pair. It takes precedence over a
// fixed price for the same pair.
func (o *StaticOracle) SetSeries(pair string, points []Point) {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	o.mu.Lock()
	defer o.mu.Unlock()
	o.series[strings.ToUpper(pair)] = sorted
}

// PriceAt looks up the series, then the fixed table.
func (o *StaticOracle) PriceAt(_ context.Context, ts time.Time, pair string) (float64, error) {
	pair = strings.ToUpper(pair)

	o.mu.RLock()
	defer o.mu.RUnlock()

	if points, ok := o.series[pair]; ok {
		return PriceAt(ts, points)
	}
	if p, ok := o.fixed[pair]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
}

// PriceAt returns the price at or before target in points, which must be
// sorted by time. If no point precedes target, the first point is used.
// Returns ErrNoPriceData if points is empty.
func PriceAt(target time.Time, points []Point) (float64, error) {
	if len(points) == 0 {
		return 0, ErrNoPriceData
	}

	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Time.After(target) {
			return points[i].Price, nil
		}
	}

	return points[0].Price, nil
}
