package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/observability"
	"eth-tax-ledger/internal/storage"
)

// RawRecordStore implements storage.RawRecordStore using PostgreSQL.
type RawRecordStore struct {
	pool *Pool
}

// NewRawRecordStore creates a new RawRecordStore.
func NewRawRecordStore(pool *Pool) *RawRecordStore {
	return &RawRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawRecordStore = (*RawRecordStore)(nil)

// InsertBulk inserts every stream of set in one transaction. Rows violating
// the natural key are skipped by ON CONFLICT DO NOTHING.
func (s *RawRecordStore) InsertBulk(ctx context.Context, wallet common.Address, set *domain.RecordSet) (int, error) {
	if set == nil {
		return 0, storage.ErrInvalidInput
	}
	if set.Len() == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO raw_records (
			wallet, kind, tx_hash, from_addr, to_addr, value, asset, position, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (wallet, kind, tx_hash, from_addr, to_addr, value, asset, position) DO NOTHING
	`

	w := storage.WalletKey(wallet)
	inserted := 0
	err := s.pool.inTx(ctx, "insert_raw_records", func(tx pgx.Tx) error {
		for _, kind := range []domain.RecordKind{domain.KindNative, domain.KindToken, domain.KindInternal} {
			for _, r := range set.Stream(kind) {
				payload, err := json.Marshal(r)
				if err != nil {
					return fmt.Errorf("marshal raw record: %w", err)
				}
				tag, err := tx.Exec(ctx, query,
					w, kind.String(), strings.ToLower(r.Hash),
					strings.ToLower(r.From), strings.ToLower(r.To), r.Value, r.TokenSymbol,
					r.Position(), payload,
				)
				if err != nil {
					return fmt.Errorf("insert raw record: %w", err)
				}
				inserted += int(tag.RowsAffected())
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetByWallet retrieves every stored record of wallet in insertion order.
func (s *RawRecordStore) GetByWallet(ctx context.Context, wallet common.Address) (*domain.RecordSet, error) {
	start := time.Now()

	query := `
		SELECT kind, payload
		FROM raw_records
		WHERE wallet = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, storage.WalletKey(wallet))
	observability.RecordDBQuery("postgres", "get_raw_records", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query raw records: %w", err)
	}
	defer rows.Close()

	set := &domain.RecordSet{}
	for rows.Next() {
		var (
			kindStr string
			payload []byte
		)
		if err := rows.Scan(&kindStr, &payload); err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		var r domain.RawRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("unmarshal raw record: %w", err)
		}
		kind, ok := domain.ParseRecordKind(kindStr)
		if !ok {
			return nil, fmt.Errorf("unknown record kind %q", kindStr)
		}
		switch kind {
		case domain.KindNative:
			set.Native = append(set.Native, r)
		case domain.KindToken:
			set.Token = append(set.Token, r)
		case domain.KindInternal:
			set.Internal = append(set.Internal, r)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw records: %w", err)
	}

	return set, nil
}
