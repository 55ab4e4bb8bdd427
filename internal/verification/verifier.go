// Package verification replays stored raw records and checks that the
// result matches the events persisted by an earlier run.
package verification

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// EventResult contains the result of verifying a single event.
type EventResult struct {
	TxHash      string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for one wallet and method.
type Report struct {
	Wallet    string
	Method    domain.AccountingMethod
	Total     int // events compared
	Matched   int
	Divergent int

	// Missing lists hashes stored but absent from the replay,
	// Unexpected lists hashes the replay produced that were never stored.
	Missing    []string
	Unexpected []string

	Results []EventResult
}

// OK reports whether the replay reproduced every stored event exactly.
func (r *Report) OK() bool {
	return r.Divergent == 0 && len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// Verifier checks determinism of stored runs.
type Verifier interface {
	VerifyWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) (*Report, error)
}

// CompareSnapshots compares two event snapshots and returns divergences.
// Numeric cells compare by value so "1.50" equals "1.5".
func CompareSnapshots(stored, replayed *domain.EventSnapshot) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.ID != replayed.ID {
		divergences = append(divergences, FieldDivergence{Field: "ID", Expected: stored.ID, Actual: replayed.ID})
	}
	if stored.Seq != replayed.Seq {
		divergences = append(divergences, FieldDivergence{Field: "Seq", Expected: stored.Seq, Actual: replayed.Seq})
	}
	if stored.BlockNumber != replayed.BlockNumber {
		divergences = append(divergences, FieldDivergence{
			Field:    "BlockNumber",
			Expected: stored.BlockNumber,
			Actual:   replayed.BlockNumber,
		})
	}
	if !stored.Timestamp.Equal(replayed.Timestamp) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Timestamp",
			Expected: stored.Timestamp,
			Actual:   replayed.Timestamp,
		})
	}
	if stored.Category != replayed.Category {
		divergences = append(divergences, FieldDivergence{
			Field:    "Category",
			Expected: stored.Category,
			Actual:   replayed.Category,
		})
	}
	if stored.Rule != replayed.Rule {
		divergences = append(divergences, FieldDivergence{Field: "Rule", Expected: stored.Rule, Actual: replayed.Rule})
	}

	for _, key := range fieldKeys(stored.Fields, replayed.Fields) {
		want, inStored := stored.Fields[key]
		got, inReplayed := replayed.Fields[key]
		switch {
		case !inStored:
			divergences = append(divergences, FieldDivergence{Field: key, Expected: nil, Actual: got})
		case !inReplayed:
			divergences = append(divergences, FieldDivergence{Field: key, Expected: want, Actual: nil})
		case !cellEquals(want, got):
			divergences = append(divergences, FieldDivergence{Field: key, Expected: want, Actual: got})
		}
	}

	return divergences
}

func fieldKeys(a, b map[string]string) []string {
	keys := make([]string, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	for _, m := range []map[string]string{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func cellEquals(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return false
	}
	return da.Equal(db)
}
