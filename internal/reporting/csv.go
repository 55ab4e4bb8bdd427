package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"eth-tax-ledger/internal/domain"
)

// RenderTaxCSV writes the tax report with TaxHeader columns.
func RenderTaxCSV(w io.Writer, rows []*domain.TaxRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(TaxHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Date,
			r.InType, r.AssetIn, r.AmountPaid, r.QuantityIn, r.BuyFee,
			r.OutType, r.AssetOut, r.QuantityOut, r.AmountReceived, r.SellFee,
			r.Profit,
			r.Balance, r.BalanceFiat,
			strconv.Itoa(r.FiscalYear),
			r.LongTermGain, r.ShortTermGain,
			string(r.Method),
			r.Issues,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.TxHash, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// EventColumns returns the sorted union of export columns across events.
func EventColumns(events []map[string]string) []string {
	set := make(map[string]struct{})
	for _, f := range events {
		for k := range f {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// RenderEventsCSV writes the full-fidelity export: every populated field
// of every event, with cells left empty where an event lacks a column.
func RenderEventsCSV(w io.Writer, events []*domain.CanonicalEvent) error {
	fields := make([]map[string]string, len(events))
	for i, ev := range events {
		fields[i] = ev.Fields()
	}
	return RenderFieldsCSV(w, fields)
}

// RenderFieldsCSV writes flattened field maps, such as stored snapshots,
// in the same layout as RenderEventsCSV.
func RenderFieldsCSV(w io.Writer, events []map[string]string) error {
	cols := EventColumns(events)
	cw := csv.NewWriter(w)

	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(cols))
	for _, f := range events {
		for i, c := range cols {
			record[i] = f[c]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write event %s: %w", f["hash"], err)
		}
	}

	cw.Flush()
	return cw.Error()
}
