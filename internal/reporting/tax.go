package reporting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/idhash"
)

// DateLayout formats the date column.
const DateLayout = time.RFC3339

// TaxHeader is the column order of the tax report.
var TaxHeader = []string{
	"date",
	"in_type", "asset_in", "amount_paid", "quantity_in", "buy_fee",
	"out_type", "asset_out", "quantity_out", "amount_received", "sell_fee",
	"profit",
	"balance", "balance_fiat",
	"fiscal_year",
	"long_term_gain", "short_term_gain",
	"method",
	"issues",
}

// BuildTaxRows builds one report row per event in apply order.
// Acquisitions fill the inbound columns and disposals the outbound ones;
// every other category shows whichever sides it resolved, without fiat values.
func BuildTaxRows(events []*domain.CanonicalEvent, method domain.AccountingMethod) []*domain.TaxRow {
	rows := make([]*domain.TaxRow, 0, len(events))
	for i, ev := range events {
		rows = append(rows, buildTaxRow(ev, i, method))
	}
	return rows
}

func buildTaxRow(ev *domain.CanonicalEvent, seq int, method domain.AccountingMethod) *domain.TaxRow {
	row := &domain.TaxRow{
		ID:         idhash.ComputeRowID(ev.ID, string(method)),
		Wallet:     strings.ToLower(ev.Wallet.Hex()),
		Method:     method,
		TxHash:     ev.TxHash,
		Seq:        seq,
		Category:   ev.Category,
		Date:       ev.Timestamp.UTC().Format(DateLayout),
		FiscalYear: ev.FiscalYear,
		Issues:     domain.FormatIssues(ev.Issues),
	}

	fee := ""
	if ev.FeeCharged {
		fee = fiat(feeValue(ev))
	}

	acquisition := ev.Category.IsAcquisition()
	disposal := ev.Category.IsDisposal()

	if ev.InAsset != "" && !disposal {
		row.InType = string(ev.Category)
		row.AssetIn = ev.InAsset
		row.QuantityIn = ev.InAmount.String()
		if acquisition {
			row.AmountPaid = fiat(ev.Cost)
			row.BuyFee = fee
		}
	}
	if ev.OutAsset != "" && !acquisition {
		row.OutType = string(ev.Category)
		row.AssetOut = ev.OutAsset
		row.QuantityOut = ev.OutAmount.String()
	}
	if !acquisition {
		row.SellFee = fee
	}
	if disposal {
		row.AmountReceived = fiat(ev.Proceeds)
		row.Profit = fiat(ev.Profit)
		row.LongTermGain = fiat(ev.LongTermGain)
		row.ShortTermGain = fiat(ev.ShortTermGain)
	}

	asset, price := primaryAsset(ev)
	if balance, ok := ev.Balance(asset); ok {
		row.Balance = balance.String()
		row.BalanceFiat = fiat(balance.Mul(price))
	}

	return row
}

// primaryAsset picks the asset whose balance the row shows: outbound for
// disposals, inbound otherwise, the native asset when neither was snapshotted.
func primaryAsset(ev *domain.CanonicalEvent) (string, decimal.Decimal) {
	if ev.Category.IsDisposal() && ev.OutAsset != "" {
		if _, ok := ev.Balance(ev.OutAsset); ok {
			return ev.OutAsset, ev.OutPrice
		}
	}
	if ev.InAsset != "" {
		if _, ok := ev.Balance(ev.InAsset); ok {
			return ev.InAsset, ev.InPrice
		}
	}
	if ev.OutAsset != "" {
		if _, ok := ev.Balance(ev.OutAsset); ok {
			return ev.OutAsset, ev.OutPrice
		}
	}
	if ev.IsTokenOnly() {
		return "", decimal.Zero
	}
	return ev.Anchor.Asset, ev.NativePrice
}

func feeValue(ev *domain.CanonicalEvent) decimal.Decimal {
	if ev.Category.IsDisposal() {
		return ev.FeeValue
	}
	return ev.GasFee.Mul(ev.NativePrice)
}

func fiat(d decimal.Decimal) string {
	return d.StringFixed(2)
}
