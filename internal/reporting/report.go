package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the per-wallet overview rendered next to the CSV files.
type Summary struct {
	// Metadata
	Wallet      string
	Method      string
	GeneratedAt time.Time
	EventCount  int

	// Data Quality
	DataQuality DataQualitySection

	// Category counts in domain.Categories order
	Categories []CountRow

	// Final balances sorted by asset
	Balances []BalanceRow

	// Gains per fiscal year, ascending
	FiscalYears []FiscalYearRow
}

// DataQualitySection lists what the run could not account for.
type DataQualitySection struct {
	DroppedRecords  int
	Duplicates      int
	EventsWithIssue int
	IntegrityErrors []string
}

// CountRow is one labelled count.
type CountRow struct {
	Label string
	Count int
}

// BalanceRow is one final asset balance.
type BalanceRow struct {
	Asset    string
	Quantity decimal.Decimal
}

// FiscalYearRow sums disposal results of one fiscal year.
type FiscalYearRow struct {
	Year          int
	Disposals     int
	Proceeds      decimal.Decimal
	Profit        decimal.Decimal
	LongTermGain  decimal.Decimal
	ShortTermGain decimal.Decimal
}
