package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent prefetch lookups.
const DefaultConcurrency = 4

// Request asks for the price of Pair at the minute containing At.
type Request struct {
	Pair string
	At   time.Time
}

type tableKey struct {
	pair   string
	minute int64
}

func keyOf(pair string, ts time.Time) tableKey {
	return tableKey{pair: pair, minute: Minute(ts).Unix()}
}

// Table holds prefetched prices. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	prices map[tableKey]float64
	errs   map[tableKey]error
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		prices: make(map[tableKey]float64),
		errs:   make(map[tableKey]error),
	}
}

// Set stores a price.
func (t *Table) Set(pair string, ts time.Time, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyOf(pair, ts)
	t.prices[k] = price
	delete(t.errs, k)
}

func (t *Table) fail(pair string, ts time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs[keyOf(pair, ts)] = err
}

// Lookup returns the prefetched price, the recorded failure, or
// ErrNoPriceData if the pair and minute were never requested.
func (t *Table) Lookup(pair string, ts time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k := keyOf(pair, ts)
	if p, ok := t.prices[k]; ok {
		return p, nil
	}
	if err, ok := t.errs[k]; ok {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s not prefetched", ErrNoPriceData, pair)
}

// Len returns the number of resolved prices.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prices)
}

// Failures returns the number of failed lookups.
func (t *Table) Failures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.errs)
}

// Prefetch resolves the de-duplicated requests with at most concurrency
// lookups in flight. Per-request failures are recorded in the table;
// only context cancellation aborts.
func Prefetch(ctx context.Context, oracle Oracle, requests []Request, concurrency int) (*Table, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	table := NewTable()
	seen := make(map[tableKey]struct{}, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, req := range requests {
		k := keyOf(req.Pair, req.At)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		at := Minute(req.At)
		pair := req.Pair
		g.Go(func() error {
			p, err := oracle.PriceAt(gctx, at, pair)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				table.fail(pair, at, err)
				return nil
			}
			table.Set(pair, at, p)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prefetch prices: %w", err)
	}
	return table, nil
}
