package resolve

import (
	"fmt"

	"eth-tax-ledger/internal/domain"
)

// TokenFlow resolves two-sided events such as swaps and sells: one leg
// leaves the wallet and one arrives. Both sides are required.
type TokenFlow struct {
	// IncludeInternal also scans internal legs, so native proceeds paid back
	// by a contract can supply the inbound side.
	IncludeInternal bool
	Precedence      LegPrecedence
}

var _ Resolver = (*TokenFlow)(nil)

// Name returns the resolver identifier.
func (t *TokenFlow) Name() string {
	if t.IncludeInternal {
		return "token-flow-internal"
	}
	return "token-flow"
}

// Resolve attaches the first outbound and first inbound candidate per source.
// A partially resolved event keeps the side that was found.
func (t *TokenFlow) Resolve(ev *domain.CanonicalEvent, legs domain.Legs) error {
	tokOut, tokIn := firstFlows(ev, legs.Token)

	var intOut, intIn *domain.Record
	if t.IncludeInternal {
		intOut, intIn = firstFlows(ev, legs.Internal)
	}

	out := t.Precedence.pick(tokOut, intOut)
	in := t.Precedence.pick(tokIn, intIn)

	// Whatever side resolved is kept so unresolved events remain reviewable.
	if out != nil {
		setOutFromRecord(ev, out)
	}
	if in != nil {
		setInFromRecord(ev, in)
	}

	switch {
	case out == nil && in == nil:
		return fmt.Errorf("%w: no inbound or outbound leg for %s", ErrMissingLeg, ev.TxHash)
	case out == nil:
		return fmt.Errorf("%w: no outbound leg for %s", ErrMissingLeg, ev.TxHash)
	case in == nil:
		return fmt.Errorf("%w: no inbound leg for %s", ErrMissingLeg, ev.TxHash)
	}
	return nil
}

// firstFlows returns the first record leaving and the first record reaching the wallet.
func firstFlows(ev *domain.CanonicalEvent, records []domain.Record) (out, in *domain.Record) {
	for i := range records {
		r := &records[i]
		if out == nil && r.From == ev.Wallet {
			out = r
		}
		if in == nil && r.To == ev.Wallet {
			in = r
		}
		if out != nil && in != nil {
			break
		}
	}
	return out, in
}
