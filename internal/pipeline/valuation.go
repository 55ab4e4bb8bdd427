package pipeline

import (
	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/price"
)

// priceRequests lists every (pair, minute) the apply pass may read:
// the native asset for fees and both resolved sides of each event.
func (r *Runner) priceRequests(events []*domain.CanonicalEvent) []price.Request {
	var reqs []price.Request
	add := func(asset string, ev *domain.CanonicalEvent) {
		if asset == "" || r.opts.Pairs.IsQuote(asset) {
			return
		}
		if pair, ok := r.opts.Pairs.Pair(asset); ok {
			reqs = append(reqs, price.Request{Pair: pair, At: ev.Timestamp})
		}
	}
	for _, ev := range events {
		if ev.Category == domain.CategoryUnresolved {
			continue
		}
		add(r.opts.NativeSymbol, ev)
		add(ev.InAsset, ev)
		add(ev.OutAsset, ev)
	}
	return reqs
}

// quote is one price read for an event. An asset with no configured pair
// is failed and unpriced, with the asset symbol in place of the pair.
type quote struct {
	pair     string
	value    decimal.Decimal
	failed   bool
	unpriced bool
}

func (r *Runner) quote(table *price.Table, ev *domain.CanonicalEvent, asset string) quote {
	if asset == "" {
		return quote{}
	}
	if r.opts.Pairs.IsQuote(asset) {
		return quote{value: decimal.NewFromInt(1)}
	}
	pair, ok := r.opts.Pairs.Pair(asset)
	if !ok {
		return quote{pair: asset, failed: true, unpriced: true}
	}
	p, err := table.Lookup(pair, ev.Timestamp)
	if err != nil {
		return quote{pair: pair, failed: true}
	}
	return quote{pair: pair, value: decimal.NewFromFloat(p)}
}

// value sets the event prices after the ledger has resolved amounts and
// fees. A missing price becomes 0 with a PriceUnavailable issue when the
// cost-basis engine has no other side to fall back on.
func (r *Runner) value(ev *domain.CanonicalEvent, table *price.Table) {
	if ev.Category == domain.CategoryUnresolved {
		return
	}

	native := r.quote(table, ev, r.opts.NativeSymbol)
	in := r.quote(table, ev, ev.InAsset)
	out := r.quote(table, ev, ev.OutAsset)

	ev.NativePrice = native.value
	ev.InPrice = in.value
	ev.OutPrice = out.value

	reported := make(map[string]struct{})
	missing := func(q quote, detail string) {
		if _, done := reported[q.pair]; done {
			return
		}
		reported[q.pair] = struct{}{}
		if q.unpriced {
			detail = "unpriced asset, " + detail
		}
		ev.AddIssue(domain.Issue{Kind: domain.IssuePriceUnavailable, Asset: q.pair, Detail: detail})
	}

	if native.failed && ev.FeeCharged && ev.GasFee.IsPositive() {
		missing(native, "fee valued at 0")
	}
	switch {
	case ev.Category.IsDisposal() && out.failed && in.value.IsZero():
		missing(out, "proceeds valued at 0")
	case ev.Category == domain.CategoryBuyOrder && in.failed && out.value.IsZero():
		missing(in, "cost valued at 0")
	}
}
