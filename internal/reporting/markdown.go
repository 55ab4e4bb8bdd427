package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a summary as Markdown string.
func RenderMarkdown(s *Summary) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Tax Ledger Summary: %s\n\n", s.Wallet))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Method: %s | Events: %d\n\n", s.Method, s.EventCount))

	// Fiscal years
	sb.WriteString("## Capital Gains by Fiscal Year\n\n")
	if len(s.FiscalYears) > 0 {
		sb.WriteString("| FY | Disposals | Proceeds | Profit | Long Term | Short Term |\n")
		sb.WriteString("|----|-----------|----------|--------|-----------|------------|\n")
		for _, fy := range s.FiscalYears {
			sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s | %s | %s |\n",
				fy.Year, fy.Disposals,
				fy.Proceeds.StringFixed(2), fy.Profit.StringFixed(2),
				fy.LongTermGain.StringFixed(2), fy.ShortTermGain.StringFixed(2)))
		}
	} else {
		sb.WriteString("No disposals.\n")
	}
	sb.WriteString("\n")

	// Categories
	sb.WriteString("## Events by Category\n\n")
	sb.WriteString("| Category | Count |\n")
	sb.WriteString("|----------|-------|\n")
	for _, c := range s.Categories {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", c.Label, c.Count))
	}
	sb.WriteString("\n")

	// Balances
	if len(s.Balances) > 0 {
		sb.WriteString("## Final Balances\n\n")
		sb.WriteString("| Asset | Quantity |\n")
		sb.WriteString("|-------|----------|\n")
		for _, b := range s.Balances {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", b.Asset, b.Quantity.String()))
		}
		sb.WriteString("\n")
	}

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Dropped Records | %d |\n", s.DataQuality.DroppedRecords))
	sb.WriteString(fmt.Sprintf("| Duplicate Records | %d |\n", s.DataQuality.Duplicates))
	sb.WriteString(fmt.Sprintf("| Events With Issues | %d |\n", s.DataQuality.EventsWithIssue))
	sb.WriteString("\n")

	// Integrity errors (always shown if present)
	if len(s.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range s.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
