package storage

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
)

// WalletKey returns the canonical lowercase form stores key wallets by.
func WalletKey(wallet common.Address) string {
	return strings.ToLower(wallet.Hex())
}

// RecordKey identifies a raw record for duplicate suppression.
// Matches the unique constraint of the raw_records table.
func RecordKey(kind domain.RecordKind, r domain.RawRecord) string {
	return strings.Join([]string{
		kind.String(),
		strings.ToLower(r.Hash),
		strings.ToLower(r.From),
		strings.ToLower(r.To),
		r.Value,
		r.TokenSymbol,
		r.Position(),
	}, "|")
}
