// Package costbasis matches disposals against acquisition lots and computes
// realized profit with a long/short holding-period split.
package costbasis

import (
	"time"

	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
)

// Portion is the part of one lot consumed by a disposal.
type Portion struct {
	Quantity   decimal.Decimal
	Cost       decimal.Decimal
	AcquiredAt time.Time
}

// Method is a lot consumption policy.
type Method interface {
	// ID returns the method identifier.
	ID() domain.AccountingMethod

	// Consume takes up to qty from queue. It returns the consumed portions in
	// consumption order and the remaining lots. The portions sum to less than
	// qty only when the queue is exhausted. The input slice is not modified.
	Consume(queue []domain.Lot, qty decimal.Decimal) ([]Portion, []domain.Lot)
}

// FIFO consumes the oldest lots first.
type FIFO struct{}

// ID returns MethodFIFO.
func (FIFO) ID() domain.AccountingMethod { return domain.MethodFIFO }

// Consume takes from the front of the queue.
func (FIFO) Consume(queue []domain.Lot, qty decimal.Decimal) ([]Portion, []domain.Lot) {
	return takeFront(queue, qty)
}

// LIFO consumes the newest lots first.
type LIFO struct{}

// ID returns MethodLIFO.
func (LIFO) ID() domain.AccountingMethod { return domain.MethodLIFO }

// Consume takes from the back of the queue.
func (LIFO) Consume(queue []domain.Lot, qty decimal.Decimal) ([]Portion, []domain.Lot) {
	var portions []Portion
	remaining := qty
	end := len(queue)

	for end > 0 && remaining.IsPositive() {
		lot := queue[end-1]
		if lot.Quantity.LessThanOrEqual(remaining) {
			portions = append(portions, Portion{Quantity: lot.Quantity, Cost: lot.Cost, AcquiredAt: lot.AcquiredAt})
			remaining = remaining.Sub(lot.Quantity)
			end--
			continue
		}
		taken, left := split(lot, remaining)
		portions = append(portions, taken)
		rest := make([]domain.Lot, end)
		copy(rest, queue[:end-1])
		rest[end-1] = left
		return portions, rest
	}

	rest := make([]domain.Lot, end)
	copy(rest, queue[:end])
	return portions, rest
}

// WAC re-prices every lot at the pool's weighted average unit cost, then
// consumes from the front so holding periods stay meaningful.
type WAC struct{}

// ID returns MethodWAC.
func (WAC) ID() domain.AccountingMethod { return domain.MethodWAC }

// Consume averages the pool and takes from the front.
func (WAC) Consume(queue []domain.Lot, qty decimal.Decimal) ([]Portion, []domain.Lot) {
	return takeFront(average(queue), qty)
}

// average returns queue with every lot at the average unit cost. The last
// lot absorbs rounding so the pool cost is unchanged.
func average(queue []domain.Lot) []domain.Lot {
	if len(queue) == 0 {
		return nil
	}
	totalQty, totalCost := sum(queue)
	out := make([]domain.Lot, len(queue))
	if totalQty.IsZero() {
		copy(out, queue)
		return out
	}

	unit := totalCost.Div(totalQty)
	allocated := decimal.Zero
	for i, lot := range queue {
		cost := lot.Quantity.Mul(unit)
		if i == len(queue)-1 {
			cost = totalCost.Sub(allocated)
		}
		allocated = allocated.Add(cost)
		out[i] = domain.Lot{Quantity: lot.Quantity, Cost: cost, AcquiredAt: lot.AcquiredAt}
	}
	return out
}

func takeFront(queue []domain.Lot, qty decimal.Decimal) ([]Portion, []domain.Lot) {
	var portions []Portion
	remaining := qty
	i := 0

	for i < len(queue) && remaining.IsPositive() {
		lot := queue[i]
		if lot.Quantity.LessThanOrEqual(remaining) {
			portions = append(portions, Portion{Quantity: lot.Quantity, Cost: lot.Cost, AcquiredAt: lot.AcquiredAt})
			remaining = remaining.Sub(lot.Quantity)
			i++
			continue
		}
		taken, left := split(lot, remaining)
		portions = append(portions, taken)
		rest := make([]domain.Lot, 0, len(queue)-i)
		rest = append(rest, left)
		rest = append(rest, queue[i+1:]...)
		return portions, rest
	}

	rest := make([]domain.Lot, len(queue)-i)
	copy(rest, queue[i:])
	return portions, rest
}

// split takes qty (strictly less than the lot quantity) from lot with a
// proportional share of its cost.
func split(lot domain.Lot, qty decimal.Decimal) (Portion, domain.Lot) {
	cost := lot.Cost.Mul(qty).Div(lot.Quantity)
	return Portion{Quantity: qty, Cost: cost, AcquiredAt: lot.AcquiredAt},
		domain.Lot{Quantity: lot.Quantity.Sub(qty), Cost: lot.Cost.Sub(cost), AcquiredAt: lot.AcquiredAt}
}

func sum(lots []domain.Lot) (qty, cost decimal.Decimal) {
	for _, lot := range lots {
		qty = qty.Add(lot.Quantity)
		cost = cost.Add(lot.Cost)
	}
	return qty, cost
}
