package resolve

import (
	"eth-tax-ledger/internal/domain"
)

// AmountSource selects how a router swap's outbound amount is established.
type AmountSource string

const (
	// FromRunningBalance takes the whole balance of the outbound asset at
	// apply time. The ledger fills the amount because it owns the balance.
	FromRunningBalance AmountSource = "running-balance"

	// FromTransactionValue takes the anchor value scaled by the outbound decimals.
	FromTransactionValue AmountSource = "transaction-value"
)

// RouterSwap resolves transfers sent by a known router contract that swaps
// one fixed asset for another.
type RouterSwap struct {
	OutAsset    string
	OutDecimals int32
	InAsset     string
	InDecimals  int32
	Source      AmountSource
}

var _ Resolver = (*RouterSwap)(nil)

// Name returns the resolver identifier.
func (r *RouterSwap) Name() string { return "router-swap" }

// Resolve never fails: both sides come from configuration and the anchor.
func (r *RouterSwap) Resolve(ev *domain.CanonicalEvent, _ domain.Legs) error {
	value := ev.Anchor.RawAmount

	setIn(ev, r.InAsset, value, r.InDecimals)

	if r.Source == FromTransactionValue {
		setOut(ev, r.OutAsset, value, r.OutDecimals)
		return nil
	}

	ev.OutAsset = r.OutAsset
	ev.OutRaw = nil
	ev.OutDecimals = 0
	ev.OutFromBalance = true
	return nil
}
