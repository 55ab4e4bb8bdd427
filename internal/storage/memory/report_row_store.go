package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// ReportRowStore is an in-memory implementation of storage.ReportRowStore.
type ReportRowStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TaxRow // keyed by wallet|method|tx_hash
}

// NewReportRowStore creates a new in-memory report row store.
func NewReportRowStore() *ReportRowStore {
	return &ReportRowStore{
		data: make(map[string]*domain.TaxRow),
	}
}

func rowKey(wallet string, method domain.AccountingMethod, txHash string) string {
	return strings.ToLower(wallet) + "|" + string(method) + "|" + strings.ToLower(txHash)
}

// InsertBulk upserts rows. The last row wins for a repeated key.
func (s *ReportRowStore) InsertBulk(_ context.Context, rows []*domain.TaxRow) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if r == nil || r.Wallet == "" || r.TxHash == "" || !r.Method.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		copy := *r
		s.data[rowKey(r.Wallet, r.Method, r.TxHash)] = &copy
	}
	return nil
}

// GetByWallet retrieves the rows of (wallet, method) ordered by seq ASC.
func (s *ReportRowStore) GetByWallet(_ context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.TaxRow, error) {
	return s.filter(wallet, method, func(*domain.TaxRow) bool { return true }), nil
}

// GetByFiscalYear retrieves the rows of (wallet, method) within fiscal year fy.
func (s *ReportRowStore) GetByFiscalYear(_ context.Context, wallet common.Address, method domain.AccountingMethod, fy int) ([]*domain.TaxRow, error) {
	return s.filter(wallet, method, func(r *domain.TaxRow) bool { return r.FiscalYear == fy }), nil
}

func (s *ReportRowStore) filter(wallet common.Address, method domain.AccountingMethod, keep func(*domain.TaxRow) bool) []*domain.TaxRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := storage.WalletKey(wallet)
	var result []*domain.TaxRow
	for _, r := range s.data {
		if strings.ToLower(r.Wallet) != w || r.Method != method || !keep(r) {
			continue
		}
		copy := *r
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].TxHash < result[j].TxHash
	})
	return result
}

var _ storage.ReportRowStore = (*ReportRowStore)(nil)
