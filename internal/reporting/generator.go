package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// Generator produces summaries from stored report rows.
type Generator struct {
	rowStore storage.ReportRowStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new summary generator.
func NewGenerator(rowStore storage.ReportRowStore) *Generator {
	return &Generator{
		rowStore: rowStore,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate summarizes the stored rows of (wallet, method).
// Balances are not part of stored rows and stay empty.
func (g *Generator) Generate(ctx context.Context, wallet common.Address, method domain.AccountingMethod) (*Summary, error) {
	rows, err := g.rowStore.GetByWallet(ctx, wallet, method)
	if err != nil {
		return nil, fmt.Errorf("load report rows: %w", err)
	}
	return Summarize(SummaryInput{
		Wallet:      storage.WalletKey(wallet),
		Method:      method,
		Rows:        rows,
		GeneratedAt: g.now(),
	})
}

// SummaryInput carries everything Summarize needs from a run.
type SummaryInput struct {
	Wallet          string
	Method          domain.AccountingMethod
	Rows            []*domain.TaxRow
	Balances        []BalanceRow
	DroppedRecords  int
	Duplicates      int
	IntegrityErrors []string
	GeneratedAt     time.Time
}

// Summarize aggregates tax rows into a Summary. It fails only on a row
// whose fiat cells are not decimals.
func Summarize(in SummaryInput) (*Summary, error) {
	counts := make(map[domain.Category]int)
	years := make(map[int]*FiscalYearRow)
	withIssue := 0

	for _, r := range in.Rows {
		counts[r.Category]++
		if r.Issues != "" {
			withIssue++
		}
		if !r.Category.IsDisposal() {
			continue
		}

		fy, ok := years[r.FiscalYear]
		if !ok {
			fy = &FiscalYearRow{Year: r.FiscalYear}
			years[r.FiscalYear] = fy
		}
		fy.Disposals++

		cells := []struct {
			dst  *decimal.Decimal
			cell string
		}{
			{&fy.Proceeds, r.AmountReceived},
			{&fy.Profit, r.Profit},
			{&fy.LongTermGain, r.LongTermGain},
			{&fy.ShortTermGain, r.ShortTermGain},
		}
		for _, c := range cells {
			v, err := parseCell(c.cell)
			if err != nil {
				return nil, fmt.Errorf("row %s: %w", r.TxHash, err)
			}
			*c.dst = c.dst.Add(v)
		}
	}

	s := &Summary{
		Wallet:      in.Wallet,
		Method:      string(in.Method),
		GeneratedAt: in.GeneratedAt,
		EventCount:  len(in.Rows),
		DataQuality: DataQualitySection{
			DroppedRecords:  in.DroppedRecords,
			Duplicates:      in.Duplicates,
			EventsWithIssue: withIssue,
			IntegrityErrors: in.IntegrityErrors,
		},
		Balances: in.Balances,
	}

	for _, c := range domain.Categories {
		if n := counts[c]; n > 0 {
			s.Categories = append(s.Categories, CountRow{Label: string(c), Count: n})
		}
	}

	for _, fy := range years {
		s.FiscalYears = append(s.FiscalYears, *fy)
	}
	sort.Slice(s.FiscalYears, func(i, j int) bool {
		return s.FiscalYears[i].Year < s.FiscalYears[j].Year
	})

	return s, nil
}

func parseCell(cell string) (decimal.Decimal, error) {
	if cell == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(cell)
}
