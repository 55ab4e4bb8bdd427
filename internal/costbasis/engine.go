package costbasis

import (
	"time"

	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
)

// DefaultLongTermAfter is the holding period a portion must exceed to be long-term.
const DefaultLongTermAfter = 365 * 24 * time.Hour

// Engine keeps per-asset lot queues for one wallet. Events must be applied
// in order; it is not safe for concurrent use.
type Engine struct {
	method        Method
	longTermAfter time.Duration
	lots          map[string][]domain.Lot
}

// NewEngine creates an engine for method. A non-positive longTermAfter
// selects DefaultLongTermAfter.
func NewEngine(method Method, longTermAfter time.Duration) *Engine {
	if longTermAfter <= 0 {
		longTermAfter = DefaultLongTermAfter
	}
	return &Engine{
		method:        method,
		longTermAfter: longTermAfter,
		lots:          make(map[string][]domain.Lot),
	}
}

// Method returns the consumption policy.
func (e *Engine) Method() Method {
	return e.method
}

// Apply records an acquisition or matches a disposal. Prices and amounts on
// ev must already be set. Other categories only get the method stamped.
func (e *Engine) Apply(ev *domain.CanonicalEvent) {
	ev.Method = e.method.ID()

	switch {
	case ev.Category.IsAcquisition():
		e.acquire(ev)
	case ev.Category.IsDisposal():
		e.dispose(ev)
	}
}

func (e *Engine) acquire(ev *domain.CanonicalEvent) {
	if ev.InAsset == "" || !ev.InAmount.IsPositive() {
		return
	}

	cost := decimal.Zero
	if ev.Category == domain.CategoryBuyOrder {
		cost = value(ev.InAmount, ev.InPrice, ev.OutAmount, ev.OutPrice)
	}
	ev.Cost = cost

	e.lots[ev.InAsset] = append(e.lots[ev.InAsset], domain.Lot{
		Quantity:   ev.InAmount,
		Cost:       cost,
		AcquiredAt: ev.Timestamp,
	})
}

func (e *Engine) dispose(ev *domain.CanonicalEvent) {
	qty := ev.OutAmount
	if qty.IsNegative() {
		qty = decimal.Zero
	}

	proceeds := value(ev.OutAmount, ev.OutPrice, ev.InAmount, ev.InPrice)
	feeValue := decimal.Zero
	if ev.FeeCharged {
		feeValue = ev.GasFee.Mul(ev.NativePrice)
	}

	var portions []Portion
	if ev.OutAsset != "" && qty.IsPositive() {
		portions, e.lots[ev.OutAsset] = e.method.Consume(e.lots[ev.OutAsset], qty)
	}

	var longQty, longBasis, shortQty, shortBasis decimal.Decimal
	for _, p := range portions {
		if ev.Timestamp.Sub(p.AcquiredAt) > e.longTermAfter {
			longQty = longQty.Add(p.Quantity)
			longBasis = longBasis.Add(p.Cost)
		} else {
			shortQty = shortQty.Add(p.Quantity)
			shortBasis = shortBasis.Add(p.Cost)
		}
	}

	shortfall := qty.Sub(longQty).Sub(shortQty)
	if shortfall.IsPositive() {
		ev.AddIssue(domain.Issue{
			Kind:   domain.IssueOverDisposal,
			Asset:  ev.OutAsset,
			Amount: shortfall.String(),
		})
	} else {
		shortfall = decimal.Zero
	}

	consumed := longBasis.Add(shortBasis)
	profit := proceeds.Sub(consumed).Sub(feeValue)

	longGain := decimal.Zero
	if longQty.IsPositive() {
		share := longQty.Div(qty)
		longGain = proceeds.Mul(share).Sub(longBasis).Sub(feeValue.Mul(share))
	}
	shortGain := decimal.Zero
	if shortQty.Add(shortfall).IsPositive() || qty.IsZero() {
		shortGain = profit.Sub(longGain)
	}

	ev.Proceeds = proceeds
	ev.FeeValue = feeValue
	ev.ConsumedCost = consumed
	ev.LongTermBasis = longBasis
	ev.ShortTermBasis = shortBasis
	ev.Profit = profit
	ev.LongTermGain = longGain
	ev.ShortTermGain = shortGain
	ev.Shortfall = shortfall
}

// Holdings returns the remaining lot quantity of asset.
func (e *Engine) Holdings(asset string) decimal.Decimal {
	qty, _ := sum(e.lots[asset])
	return qty
}

// Lots returns a copy of the remaining lots of asset in queue order.
func (e *Engine) Lots(asset string) []domain.Lot {
	lots := e.lots[asset]
	out := make([]domain.Lot, len(lots))
	copy(out, lots)
	return out
}

// value prices amount at price, falling back to the other side of the
// event when the primary side is unpriced.
func value(amount, price, otherAmount, otherPrice decimal.Decimal) decimal.Decimal {
	if !price.IsZero() {
		return amount.Mul(price)
	}
	return otherAmount.Mul(otherPrice)
}
