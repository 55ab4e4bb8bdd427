package resolve

import (
	"fmt"

	"eth-tax-ledger/internal/domain"
)

// SingleLeg resolves one-sided events: deposits, withdrawals and simple buys.
// It takes the first token leg and falls back to the anchor's own value.
type SingleLeg struct {
	Precedence LegPrecedence
}

var _ Resolver = (*SingleLeg)(nil)

// Name returns the resolver identifier.
func (s *SingleLeg) Name() string { return "single-leg" }

// Resolve attaches whichever sides the legs and anchor establish.
func (s *SingleLeg) Resolve(ev *domain.CanonicalEvent, legs domain.Legs) error {
	var tokenOut bool

	if len(legs.Token) > 0 {
		tok := &legs.Token[0]
		switch {
		case tok.From == ev.Wallet:
			setOutFromRecord(ev, tok)
			tokenOut = true
		case tok.To == ev.Wallet:
			setInFromRecord(ev, tok)
		}
	}

	for i := range legs.Internal {
		r := &legs.Internal[i]
		if r.To == ev.Wallet && ev.InAsset == "" {
			setInFromRecord(ev, r)
		}
		if r.From == ev.Wallet {
			if ev.OutAsset == "" || (tokenOut && s.Precedence.pick(&legs.Token[0], r) == r) {
				setOutFromRecord(ev, r)
				tokenOut = false
			}
		}
	}

	anchor := &ev.Anchor
	value := anchor.RawAmount
	positive := value != nil && value.Sign() > 0

	if ev.IsNativeAnchor() && ev.Direction == domain.DirectionOut && positive &&
		ev.OutAsset == "" && ev.InAsset != "" {
		// Native paid for an incoming token.
		setOutFromRecord(ev, anchor)
	}

	if len(legs.Token) == 0 && ev.InAsset == "" && ev.OutAsset == "" && emptyMethod(anchor.MethodID) {
		if ev.Direction == domain.DirectionOut {
			setOutFromRecord(ev, anchor)
		} else {
			setInFromRecord(ev, anchor)
		}
	}

	if ev.InAsset == "" && ev.OutAsset == "" {
		return fmt.Errorf("%w: no flow resolvable for %s", ErrMissingLeg, ev.TxHash)
	}
	return nil
}

func emptyMethod(method string) bool {
	return method == "" || method == "0x"
}
