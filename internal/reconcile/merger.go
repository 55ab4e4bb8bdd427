// Package reconcile groups normalized records sharing a transaction hash
// into one canonical event skeleton per hash.
package reconcile

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/idhash"
)

// Result is the output of Merge.
type Result struct {
	// Events holds one skeleton per hash in first-seen block order.
	Events []*domain.CanonicalEvent

	// Duplicates counts records dropped as exact copies of another record.
	Duplicates int

	legs map[string]*domain.Legs
}

// Legs returns the token and internal records sharing hash.
func (r *Result) Legs(hash string) domain.Legs {
	if l, ok := r.legs[hash]; ok {
		return *l
	}
	return domain.Legs{}
}

type group struct {
	native   *domain.Record
	legs     *domain.Legs
	first    domain.Record
	seenKeys map[string]struct{}
}

// Merge builds canonical event skeletons for wallet.
// Steps:
//  1. Stable sort all records by block, then stream kind, then stream index
//  2. Collect unique hashes in first-seen order
//  3. Anchor each hash on its native record, else its first token record,
//     else its first internal record
//  4. Attach token and internal records as legs, collapsing exact copies
//
// The input slice is reordered in place.
func Merge(wallet common.Address, records []domain.Record) *Result {
	SortRecords(records)

	var (
		order  []string
		groups = make(map[string]*group)
		dups   int
	)

	for i := range records {
		rec := records[i]

		g, ok := groups[rec.TxHash]
		if !ok {
			g = &group{
				legs:     &domain.Legs{},
				first:    rec,
				seenKeys: make(map[string]struct{}),
			}
			groups[rec.TxHash] = g
			order = append(order, rec.TxHash)
		}

		key := recordKey(&rec)
		if _, seen := g.seenKeys[key]; seen {
			dups++
			continue
		}
		g.seenKeys[key] = struct{}{}

		switch rec.Kind {
		case domain.KindNative:
			if g.native == nil {
				g.native = &rec
			} else {
				dups++
			}
		case domain.KindToken:
			g.legs.Token = append(g.legs.Token, rec)
		case domain.KindInternal:
			g.legs.Internal = append(g.legs.Internal, rec)
		}
	}

	result := &Result{
		Events:     make([]*domain.CanonicalEvent, 0, len(order)),
		Duplicates: dups,
		legs:       make(map[string]*domain.Legs, len(order)),
	}

	for _, hash := range order {
		g := groups[hash]
		anchor := g.first
		switch {
		case g.native != nil:
			anchor = *g.native
		case len(g.legs.Token) > 0:
			anchor = g.legs.Token[0]
		}

		result.Events = append(result.Events, &domain.CanonicalEvent{
			ID:                           idhash.ComputeEventID(wallet.Hex(), hash),
			Wallet:                       wallet,
			TxHash:                       hash,
			BlockNumber:                  anchor.BlockNumber,
			Timestamp:                    anchor.Timestamp,
			Anchor:                       anchor,
			HasNativeRecord:              g.native != nil,
			HasTokenTransferRecord:       len(g.legs.Token) > 0,
			HasInternalTransactionRecord: len(g.legs.Internal) > 0,
		})
		result.legs[hash] = g.legs
	}

	return result
}

// recordKey identifies exact copies of a record within one hash. Legs with
// equal amounts at different positions are distinct.
func recordKey(r *domain.Record) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s|%s", r.Kind, r.From.Hex(), r.To.Hex(), r.RawAmount.String(), r.Asset, r.Position)
}
