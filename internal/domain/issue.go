package domain

import (
	"fmt"
	"strings"
)

// IssueKind classifies a per-event problem. Issues annotate the output row;
// they never abort a run.
type IssueKind string

const (
	IssueMissingField             IssueKind = "MissingField"
	IssueUnresolvedClassification IssueKind = "UnresolvedClassification"
	IssueMissingLeg               IssueKind = "MissingLeg"
	IssueOverDisposal             IssueKind = "OverDisposal"
	IssueNegativeBalanceDrift     IssueKind = "NegativeBalanceDrift"
	IssuePriceUnavailable         IssueKind = "PriceUnavailable"
)

// Issue is a problem attached to one event.
type Issue struct {
	Kind   IssueKind
	Asset  string // asset or pair the issue concerns, if any
	Amount string // shortfall or drifted balance, if any
	Detail string
}

// String renders the issue as a compact report cell fragment.
func (i Issue) String() string {
	var sb strings.Builder
	sb.WriteString(string(i.Kind))
	if i.Asset != "" {
		sb.WriteString(fmt.Sprintf("(%s", i.Asset))
		if i.Amount != "" {
			sb.WriteString(" " + i.Amount)
		}
		sb.WriteString(")")
	}
	if i.Detail != "" {
		sb.WriteString(": " + i.Detail)
	}
	return sb.String()
}

// FormatIssues joins issues in attachment order.
func FormatIssues(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}
