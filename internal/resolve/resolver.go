// Package resolve attaches inbound and outbound flows to classified events
// from their token and internal legs.
package resolve

import (
	"errors"
	"math/big"

	"eth-tax-ledger/internal/domain"
)

// ErrMissingLeg is returned when a required inbound or outbound leg is absent.
var ErrMissingLeg = errors.New("missing leg")

// Resolver fills the flow fields of one event.
type Resolver interface {
	// Name returns a stable identifier used in logs and rule tables.
	Name() string

	// Resolve sets InAsset/InRaw/InDecimals and OutAsset/OutRaw/OutDecimals.
	// Returns an error wrapping ErrMissingLeg when a required side is absent.
	Resolve(ev *domain.CanonicalEvent, legs domain.Legs) error
}

// LegPrecedence decides which record supplies a direction when a token leg
// and an internal leg both qualify.
type LegPrecedence string

const (
	InternalFirst LegPrecedence = "internal-first"
	TokenFirst    LegPrecedence = "token-first"
)

// ParsePrecedence maps a configuration value to a policy.
// Unknown values fall back to InternalFirst.
func ParsePrecedence(s string) LegPrecedence {
	if LegPrecedence(s) == TokenFirst {
		return TokenFirst
	}
	return InternalFirst
}

// pick chooses between the token and internal candidate for one direction.
func (p LegPrecedence) pick(token, internal *domain.Record) *domain.Record {
	switch {
	case token == nil:
		return internal
	case internal == nil:
		return token
	case p == TokenFirst:
		return token
	default:
		return internal
	}
}

func setIn(ev *domain.CanonicalEvent, asset string, raw *big.Int, decimals int32) {
	ev.InAsset = asset
	ev.InRaw = copyBig(raw)
	ev.InDecimals = decimals
}

func setOut(ev *domain.CanonicalEvent, asset string, raw *big.Int, decimals int32) {
	ev.OutAsset = asset
	ev.OutRaw = copyBig(raw)
	ev.OutDecimals = decimals
	ev.OutFromBalance = false
}

func setInFromRecord(ev *domain.CanonicalEvent, r *domain.Record) {
	setIn(ev, r.Asset, r.RawAmount, r.Decimals)
}

func setOutFromRecord(ev *domain.CanonicalEvent, r *domain.Record) {
	setOut(ev, r.Asset, r.RawAmount, r.Decimals)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
