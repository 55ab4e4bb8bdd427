package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
)

// RawRecordStore provides access to raw explorer records.
type RawRecordStore interface {
	// InsertBulk adds the streams of set for wallet. Records already stored
	// under the same (kind, hash, from, to, value, asset) are skipped.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, wallet common.Address, set *domain.RecordSet) (int, error)

	// GetByWallet retrieves every stored record of wallet, each stream in insertion order.
	GetByWallet(ctx context.Context, wallet common.Address) (*domain.RecordSet, error)
}

// EventStore provides access to processed event snapshots.
type EventStore interface {
	// ReplaceByWallet atomically replaces the events of (wallet, method).
	ReplaceByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod, events []*domain.EventSnapshot) error

	// GetByWallet retrieves the events of (wallet, method) ordered by seq ASC.
	GetByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.EventSnapshot, error)

	// GetByHash retrieves one event. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, wallet common.Address, method domain.AccountingMethod, txHash string) (*domain.EventSnapshot, error)
}

// ReportRowStore provides access to tax report rows.
type ReportRowStore interface {
	// InsertBulk upserts rows keyed by (wallet, method, tx_hash).
	InsertBulk(ctx context.Context, rows []*domain.TaxRow) error

	// GetByWallet retrieves the rows of (wallet, method) ordered by seq ASC.
	GetByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.TaxRow, error)

	// GetByFiscalYear retrieves the rows of (wallet, method) within fiscal year fy.
	GetByFiscalYear(ctx context.Context, wallet common.Address, method domain.AccountingMethod, fy int) ([]*domain.TaxRow, error)
}
