package reconcile

import (
	"errors"
	"sort"

	"eth-tax-ledger/internal/domain"
)

// ErrInvalidOrdering is returned when events are not in block order.
var ErrInvalidOrdering = errors.New("events are not in block order")

// SortRecords orders records by (block_number ASC, kind ASC, stream_index ASC).
// Kind order is native, token, internal. The sort is stable so equal keys keep
// their input order.
func SortRecords(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecords(&records[i], &records[j]) < 0
	})
}

// ValidateOrdering checks that events are in non-decreasing block order with
// unique hashes. Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []*domain.CanonicalEvent) error {
	seen := make(map[string]struct{}, len(events))
	for i, ev := range events {
		if _, dup := seen[ev.TxHash]; dup {
			return ErrInvalidOrdering
		}
		seen[ev.TxHash] = struct{}{}
		if i > 0 && events[i-1].BlockNumber > ev.BlockNumber {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block_number ASC, kind ASC, stream_index ASC)
func compareRecords(a, b *domain.Record) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.StreamIndex != b.StreamIndex {
		if a.StreamIndex < b.StreamIndex {
			return -1
		}
		return 1
	}
	return 0
}
