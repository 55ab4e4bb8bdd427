package domain

import (
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Direction describes which way value flows relative to the wallet.
// Router swaps carry a configured label instead of one of the constants.
type Direction string

const (
	DirectionIn        Direction = "In"
	DirectionOut       Direction = "Out"
	DirectionFeesOnly  Direction = "FeesOnly"
	DirectionTokenSwap Direction = "TokenSwap"
)

// Category is the economic intent assigned to an event.
type Category string

const (
	CategoryDeposit            Category = "deposit"
	CategoryDepositNative      Category = "deposit-native"
	CategoryWithdrawal         Category = "withdrawal"
	CategorySoldToCounterparty Category = "sold-to-counterparty"
	CategoryBuyOrder           Category = "buy-order"
	CategorySellOrder          Category = "sell-order"
	CategoryTokenSwap          Category = "token-swap"
	CategoryFeesOnly           Category = "fees-only"
	CategoryUnresolved         Category = "unresolved"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryDeposit,
	CategoryDepositNative,
	CategoryWithdrawal,
	CategorySoldToCounterparty,
	CategoryBuyOrder,
	CategorySellOrder,
	CategoryTokenSwap,
	CategoryFeesOnly,
	CategoryUnresolved,
}

// IsValid checks if the category is one of the closed set.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// IsAcquisition reports whether the category adds a cost-basis lot.
func (c Category) IsAcquisition() bool {
	return c == CategoryDeposit || c == CategoryDepositNative || c == CategoryBuyOrder
}

// IsDisposal reports whether the category consumes cost-basis lots.
func (c Category) IsDisposal() bool {
	return c == CategorySellOrder || c == CategoryWithdrawal || c == CategorySoldToCounterparty
}

// Legs are the auxiliary records sharing one transaction hash.
type Legs struct {
	Token    []Record
	Internal []Record
}

// CanonicalEvent is the merged representation of every record sharing one
// transaction hash. It is created by the merger and then filled in by the
// classifier, resolver, ledger and cost-basis engine in that order.
type CanonicalEvent struct {
	ID          string // deterministic, see idhash.ComputeEventID
	Wallet      common.Address
	TxHash      string
	BlockNumber uint64
	Timestamp   time.Time
	Anchor      Record

	HasNativeRecord              bool
	HasTokenTransferRecord       bool
	HasInternalTransactionRecord bool

	// Classification
	Direction Direction
	Category  Category
	Rule      string

	// Resolved flows. Raw values are scaled into amounts by the ledger.
	InAsset        string
	InRaw          *big.Int
	InDecimals     int32
	InAmount       decimal.Decimal
	OutAsset       string
	OutRaw         *big.Int
	OutDecimals    int32
	OutAmount      decimal.Decimal
	OutFromBalance bool // outbound amount is the running balance at apply time

	// Ledger
	GasFee      decimal.Decimal
	FeeCharged  bool
	Balances    map[string]decimal.Decimal // post-event snapshots
	FiscalYear  int
	NativePrice decimal.Decimal
	InPrice     decimal.Decimal
	OutPrice    decimal.Decimal

	// Cost basis
	Method         AccountingMethod
	Cost           decimal.Decimal // acquisition cost
	Proceeds       decimal.Decimal
	FeeValue       decimal.Decimal
	ConsumedCost   decimal.Decimal
	LongTermBasis  decimal.Decimal
	ShortTermBasis decimal.Decimal
	Profit         decimal.Decimal
	LongTermGain   decimal.Decimal
	ShortTermGain  decimal.Decimal
	Shortfall      decimal.Decimal

	Issues []Issue
}

// AddIssue attaches a per-event problem.
func (e *CanonicalEvent) AddIssue(issue Issue) {
	e.Issues = append(e.Issues, issue)
}

// HasIssue reports whether an issue of the given kind is attached.
func (e *CanonicalEvent) HasIssue(kind IssueKind) bool {
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// IsNativeAnchor reports whether the event is anchored on a native transfer.
func (e *CanonicalEvent) IsNativeAnchor() bool {
	return e.Anchor.Kind == KindNative
}

// IsTokenOnly reports whether no native record exists and a token record anchors the event.
func (e *CanonicalEvent) IsTokenOnly() bool {
	return e.Anchor.Kind == KindToken
}

// Balance returns the post-event snapshot for asset.
func (e *CanonicalEvent) Balance(asset string) (decimal.Decimal, bool) {
	b, ok := e.Balances[asset]
	return b, ok
}

// Fields flattens every populated field into column/value pairs for the
// full-fidelity export. Optional fields are omitted when unset so the export
// column set is the union across events.
func (e *CanonicalEvent) Fields() map[string]string {
	f := map[string]string{
		"id":                           e.ID,
		"wallet":                       strings.ToLower(e.Wallet.Hex()),
		"hash":                         e.TxHash,
		"blockNumber":                  strconv.FormatUint(e.BlockNumber, 10),
		"timeStamp":                    strconv.FormatInt(e.Timestamp.Unix(), 10),
		"date":                         e.Timestamp.UTC().Format(time.RFC3339),
		"from":                         strings.ToLower(e.Anchor.From.Hex()),
		"to":                           strings.ToLower(e.Anchor.To.Hex()),
		"anchorKind":                   e.Anchor.Kind.String(),
		"value":                        bigString(e.Anchor.RawAmount),
		"gasPrice":                     bigString(e.Anchor.GasPrice),
		"gasUsed":                      bigString(e.Anchor.GasUsed),
		"methodId":                     e.Anchor.MethodID,
		"functionName":                 e.Anchor.FunctionName,
		"isError":                      strconv.FormatBool(e.Anchor.IsError),
		"direction":                    string(e.Direction),
		"action":                       string(e.Category),
		"rule":                         e.Rule,
		"hasTokenTransferRecord":       strconv.FormatBool(e.HasTokenTransferRecord),
		"hasInternalTransactionRecord": strconv.FormatBool(e.HasInternalTransactionRecord),
		"gasFee":                       e.GasFee.String(),
		"feeCharged":                   strconv.FormatBool(e.FeeCharged),
		"fiscalYear":                   strconv.Itoa(e.FiscalYear),
		"nativePrice":                  e.NativePrice.String(),
		"method":                       string(e.Method),
		"profit":                       e.Profit.String(),
		"longTermGain":                 e.LongTermGain.String(),
		"shortTermGain":                e.ShortTermGain.String(),
	}
	if e.InAsset != "" {
		f["inToken"] = e.InAsset
		f["inTokenValue"] = e.InAmount.String()
		f["inTokenRaw"] = bigString(e.InRaw)
		f["inTokenDecimal"] = strconv.Itoa(int(e.InDecimals))
		f["inTokenPrice"] = e.InPrice.String()
	}
	if e.OutAsset != "" {
		f["outToken"] = e.OutAsset
		f["outTokenValue"] = e.OutAmount.String()
		f["outTokenRaw"] = bigString(e.OutRaw)
		f["outTokenDecimal"] = strconv.Itoa(int(e.OutDecimals))
		f["outTokenPrice"] = e.OutPrice.String()
	}
	for asset, balance := range e.Balances {
		f["balance_"+asset] = balance.String()
	}
	if e.Category.IsAcquisition() {
		f["cost"] = e.Cost.String()
	}
	if e.Category.IsDisposal() {
		f["proceeds"] = e.Proceeds.String()
		f["feeValue"] = e.FeeValue.String()
		f["consumedCost"] = e.ConsumedCost.String()
		f["longTermBasis"] = e.LongTermBasis.String()
		f["shortTermBasis"] = e.ShortTermBasis.String()
	}
	if !e.Shortfall.IsZero() {
		f["shortfall"] = e.Shortfall.String()
	}
	if len(e.Issues) > 0 {
		f["issues"] = FormatIssues(e.Issues)
	}
	return f
}

// BalanceAssets returns the snapshot assets in sorted order.
func (e *CanonicalEvent) BalanceAssets() []string {
	assets := make([]string, 0, len(e.Balances))
	for a := range e.Balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
