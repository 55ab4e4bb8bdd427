package domain

import (
	"strings"
	"time"
)

// EventSnapshot is the persisted form of a processed event.
// Fields holds the flattened export columns so a stored event can be
// compared with a fresh run without reconstructing decimal state.
type EventSnapshot struct {
	ID          string
	Wallet      string // lowercase hex
	Method      AccountingMethod
	TxHash      string
	BlockNumber uint64
	Seq         int // position in apply order
	Timestamp   time.Time
	Category    Category
	Rule        string
	Fields      map[string]string
}

// Snapshot captures the event at position seq.
func (e *CanonicalEvent) Snapshot(seq int) *EventSnapshot {
	return &EventSnapshot{
		ID:          e.ID,
		Wallet:      strings.ToLower(e.Wallet.Hex()),
		Method:      e.Method,
		TxHash:      e.TxHash,
		BlockNumber: e.BlockNumber,
		Seq:         seq,
		Timestamp:   e.Timestamp.UTC(),
		Category:    e.Category,
		Rule:        e.Rule,
		Fields:      e.Fields(),
	}
}
