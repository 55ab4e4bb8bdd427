// Package ledger tracks running per-asset balances and scales resolved raw
// amounts into decimal quantities.
package ledger

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
)

// weiDecimals scales gasPrice × gasUsed into the native unit.
const weiDecimals = 18

// Balance is one asset's running balance.
type Balance struct {
	Asset  string
	Amount decimal.Decimal
}

// Totals accumulates every flow applied, for conservation checks:
// balance = In - Out - Fees per asset.
type Totals struct {
	In   map[string]decimal.Decimal
	Out  map[string]decimal.Decimal
	Fees map[string]decimal.Decimal
}

// Ledger holds the running balances for a single wallet. It is not safe for
// concurrent use; events must be applied in order.
type Ledger struct {
	native   string
	epsilon  decimal.Decimal
	balances map[string]decimal.Decimal
	totals   Totals
}

// New creates an empty ledger. Balances within epsilon of zero are clamped.
func New(nativeSymbol string, epsilon decimal.Decimal) *Ledger {
	return &Ledger{
		native:   nativeSymbol,
		epsilon:  epsilon.Abs(),
		balances: make(map[string]decimal.Decimal),
		totals: Totals{
			In:   make(map[string]decimal.Decimal),
			Out:  make(map[string]decimal.Decimal),
			Fees: make(map[string]decimal.Decimal),
		},
	}
}

// Apply scales the event's flows, charges its fee, updates balances and
// writes the post-event snapshots into ev.Balances.
func (l *Ledger) Apply(ev *domain.CanonicalEvent) {
	if ev.InAsset != "" {
		ev.InAmount = Scale(ev.InRaw, ev.InDecimals)
	}
	if ev.OutAsset != "" {
		if ev.OutFromBalance {
			ev.OutAmount = l.balances[ev.OutAsset]
			if ev.OutAmount.IsNegative() {
				ev.OutAmount = decimal.Zero
			}
		} else {
			ev.OutAmount = Scale(ev.OutRaw, ev.OutDecimals)
		}
	}

	ev.GasFee = GasFee(ev.Anchor.GasPrice, ev.Anchor.GasUsed)
	ev.FeeCharged = chargesFee(ev.Direction)

	if ev.FeeCharged {
		l.debit(l.native, ev.GasFee)
		l.totals.Fees[l.native] = l.totals.Fees[l.native].Add(ev.GasFee)
	}
	if ev.InAsset != "" {
		l.credit(ev.InAsset, ev.InAmount)
		l.totals.In[ev.InAsset] = l.totals.In[ev.InAsset].Add(ev.InAmount)
	}
	if ev.OutAsset != "" {
		l.debit(ev.OutAsset, ev.OutAmount)
		l.totals.Out[ev.OutAsset] = l.totals.Out[ev.OutAsset].Add(ev.OutAmount)
	}

	ev.Balances = make(map[string]decimal.Decimal, 3)
	if ev.InAsset != "" {
		l.snapshot(ev, ev.InAsset)
	}
	if ev.OutAsset != "" {
		l.snapshot(ev, ev.OutAsset)
	}
	if ev.FeeCharged {
		l.snapshot(ev, l.native)
	}
}

// snapshot clamps the asset balance and records it on the event.
func (l *Ledger) snapshot(ev *domain.CanonicalEvent, asset string) {
	if _, done := ev.Balances[asset]; done {
		return
	}
	b := l.balances[asset]
	switch {
	case b.Abs().LessThanOrEqual(l.epsilon):
		b = decimal.Zero
		l.balances[asset] = b
	case b.LessThan(l.epsilon.Neg()):
		ev.AddIssue(domain.Issue{
			Kind:   domain.IssueNegativeBalanceDrift,
			Asset:  asset,
			Amount: b.String(),
		})
	}
	ev.Balances[asset] = b
}

func (l *Ledger) credit(asset string, amount decimal.Decimal) {
	l.balances[asset] = l.balances[asset].Add(amount)
}

func (l *Ledger) debit(asset string, amount decimal.Decimal) {
	l.balances[asset] = l.balances[asset].Sub(amount)
}

// Balance returns the running balance of asset.
func (l *Ledger) Balance(asset string) decimal.Decimal {
	return l.balances[asset]
}

// Balances returns every running balance sorted by asset.
func (l *Ledger) Balances() []Balance {
	out := make([]Balance, 0, len(l.balances))
	for asset, amount := range l.balances {
		out = append(out, Balance{Asset: asset, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Totals returns a copy of the flow accumulators.
func (l *Ledger) Totals() Totals {
	return Totals{
		In:   copyMap(l.totals.In),
		Out:  copyMap(l.totals.Out),
		Fees: copyMap(l.totals.Fees),
	}
}

// Scale converts an integer amount into units: raw × 10^-decimals.
func Scale(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// GasFee returns gasPrice × gasUsed in the native unit.
func GasFee(gasPrice, gasUsed *big.Int) decimal.Decimal {
	if gasPrice == nil || gasUsed == nil {
		return decimal.Zero
	}
	return Scale(new(big.Int).Mul(gasPrice, gasUsed), weiDecimals)
}

// chargesFee reports whether the wallet paid gas for an event of direction d.
// Router swap labels are not charged.
func chargesFee(d domain.Direction) bool {
	switch d {
	case domain.DirectionOut, domain.DirectionFeesOnly, domain.DirectionTokenSwap:
		return true
	default:
		return false
	}
}

func copyMap(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
