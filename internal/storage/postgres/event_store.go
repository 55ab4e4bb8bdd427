package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// ReplaceByWallet deletes the previous events of (wallet, method) and inserts
// events in one transaction. Returns ErrDuplicateKey if a hash repeats.
func (s *EventStore) ReplaceByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod, events []*domain.EventSnapshot) error {
	if !method.IsValid() {
		return storage.ErrInvalidInput
	}
	for _, e := range events {
		if e == nil || e.TxHash == "" {
			return storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO events (
			wallet, method, tx_hash, event_id, block_number, seq, ts,
			category, rule, fields
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10
		)
	`

	w := storage.WalletKey(wallet)
	return s.pool.inTx(ctx, "replace_events", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE wallet = $1 AND method = $2`, w, string(method)); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}
		for _, e := range events {
			fields, err := json.Marshal(e.Fields)
			if err != nil {
				return fmt.Errorf("marshal event fields: %w", err)
			}
			_, err = tx.Exec(ctx, query,
				w, string(method), strings.ToLower(e.TxHash), e.ID, int64(e.BlockNumber), e.Seq, e.Timestamp.UTC(),
				string(e.Category), e.Rule, fields,
			)
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return nil
	})
}

// GetByWallet retrieves the events of (wallet, method) ordered by seq ASC.
func (s *EventStore) GetByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.EventSnapshot, error) {
	query := `
		SELECT
			wallet, method, tx_hash, event_id, block_number, seq, ts,
			category, rule, fields
		FROM events
		WHERE wallet = $1 AND method = $2
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, storage.WalletKey(wallet), string(method))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*domain.EventSnapshot
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return result, nil
}

// GetByHash retrieves one event. Returns ErrNotFound if not exists.
func (s *EventStore) GetByHash(ctx context.Context, wallet common.Address, method domain.AccountingMethod, txHash string) (*domain.EventSnapshot, error) {
	query := `
		SELECT
			wallet, method, tx_hash, event_id, block_number, seq, ts,
			category, rule, fields
		FROM events
		WHERE wallet = $1 AND method = $2 AND tx_hash = $3
	`

	row := s.pool.QueryRow(ctx, query, storage.WalletKey(wallet), string(method), strings.ToLower(txHash))
	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event by hash: %w", err)
	}
	return e, nil
}

// scanEvent scans a row into an EventSnapshot.
func scanEvent(row pgx.Row) (*domain.EventSnapshot, error) {
	var (
		e           domain.EventSnapshot
		method      string
		category    string
		blockNumber int64
		fields      []byte
	)

	err := row.Scan(
		&e.Wallet, &method, &e.TxHash, &e.ID, &blockNumber, &e.Seq, &e.Timestamp,
		&category, &e.Rule, &fields,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fields, &e.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal event fields: %w", err)
	}
	e.Method = domain.AccountingMethod(method)
	e.Category = domain.Category(category)
	e.BlockNumber = uint64(blockNumber)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
