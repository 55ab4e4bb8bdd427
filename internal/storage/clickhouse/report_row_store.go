package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/observability"
	"eth-tax-ledger/internal/storage"
)

// ReportRowStore implements storage.ReportRowStore using ClickHouse.
type ReportRowStore struct {
	conn *Conn
}

// NewReportRowStore creates a new ReportRowStore.
func NewReportRowStore(conn *Conn) *ReportRowStore {
	return &ReportRowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ReportRowStore = (*ReportRowStore)(nil)

const taxRowColumns = `
	row_id, wallet, method, tx_hash, seq, category,
	date, in_type, asset_in, amount_paid, quantity_in, buy_fee,
	out_type, asset_out, quantity_out, amount_received, sell_fee,
	profit, balance, balance_fiat, fiscal_year,
	long_term_gain, short_term_gain, issues`

// InsertBulk writes rows in one batch. ReplacingMergeTree collapses repeated
// (wallet, method, tx_hash) keys to the newest version.
func (s *ReportRowStore) InsertBulk(ctx context.Context, rows []*domain.TaxRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r == nil || r.Wallet == "" || r.TxHash == "" || !r.Method.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO tax_rows (`+taxRowColumns+`, updated_at)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.ID, strings.ToLower(r.Wallet), string(r.Method), strings.ToLower(r.TxHash), uint32(r.Seq), string(r.Category),
			r.Date, r.InType, r.AssetIn, r.AmountPaid, r.QuantityIn, r.BuyFee,
			r.OutType, r.AssetOut, r.QuantityOut, r.AmountReceived, r.SellFee,
			r.Profit, r.Balance, r.BalanceFiat, int32(r.FiscalYear),
			r.LongTermGain, r.ShortTermGain, r.Issues,
			start,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_tax_rows", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves the rows of (wallet, method) ordered by seq ASC.
func (s *ReportRowStore) GetByWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.TaxRow, error) {
	query := `
		SELECT` + taxRowColumns + `
		FROM tax_rows FINAL
		WHERE wallet = ? AND method = ?
		ORDER BY seq ASC, tx_hash ASC
	`

	rows, err := s.conn.Query(ctx, query, storage.WalletKey(wallet), string(method))
	if err != nil {
		return nil, fmt.Errorf("query tax rows: %w", err)
	}
	defer rows.Close()

	return scanTaxRows(rows)
}

// GetByFiscalYear retrieves the rows of (wallet, method) within fiscal year fy.
func (s *ReportRowStore) GetByFiscalYear(ctx context.Context, wallet common.Address, method domain.AccountingMethod, fy int) ([]*domain.TaxRow, error) {
	query := `
		SELECT` + taxRowColumns + `
		FROM tax_rows FINAL
		WHERE wallet = ? AND method = ? AND fiscal_year = ?
		ORDER BY seq ASC, tx_hash ASC
	`

	rows, err := s.conn.Query(ctx, query, storage.WalletKey(wallet), string(method), int32(fy))
	if err != nil {
		return nil, fmt.Errorf("query tax rows by fiscal year: %w", err)
	}
	defer rows.Close()

	return scanTaxRows(rows)
}

// scanTaxRows scans rows into TaxRow slice.
func scanTaxRows(rows driver.Rows) ([]*domain.TaxRow, error) {
	var result []*domain.TaxRow
	for rows.Next() {
		var (
			r        domain.TaxRow
			method   string
			category string
			seq      uint32
			fy       int32
		)
		err := rows.Scan(
			&r.ID, &r.Wallet, &method, &r.TxHash, &seq, &category,
			&r.Date, &r.InType, &r.AssetIn, &r.AmountPaid, &r.QuantityIn, &r.BuyFee,
			&r.OutType, &r.AssetOut, &r.QuantityOut, &r.AmountReceived, &r.SellFee,
			&r.Profit, &r.Balance, &r.BalanceFiat, &fy,
			&r.LongTermGain, &r.ShortTermGain, &r.Issues,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tax row: %w", err)
		}
		r.Method = domain.AccountingMethod(method)
		r.Category = domain.Category(category)
		r.Seq = int(seq)
		r.FiscalYear = int(fy)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax rows: %w", err)
	}

	return result, nil
}
