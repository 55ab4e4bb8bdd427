package ledger

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-tax-ledger/internal/domain"
)

var eps = decimal.RequireFromString("0.000000000001")

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

func deposit(raw string) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		TxHash:     "0xin",
		Direction:  domain.DirectionIn,
		Category:   domain.CategoryDepositNative,
		InAsset:    "ETH",
		InRaw:      wei(raw),
		InDecimals: 18,
	}
}

func withdrawal(raw, gasPrice, gasUsed string) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		TxHash:      "0xout",
		Direction:   domain.DirectionOut,
		Category:    domain.CategoryWithdrawal,
		Anchor:      domain.Record{GasPrice: wei(gasPrice), GasUsed: wei(gasUsed)},
		OutAsset:    "ETH",
		OutRaw:      wei(raw),
		OutDecimals: 18,
	}
}

func TestApply_DepositWithdrawWithFee(t *testing.T) {
	l := New("ETH", eps)

	in := deposit("1000000000000000000")
	l.Apply(in)
	assert.Equal(t, "1", in.InAmount.String())
	assert.False(t, in.FeeCharged)
	assert.Equal(t, "1", in.Balances["ETH"].String())

	// 0.4 ETH out, fee 50 gwei × 20000 = 0.001 ETH
	out := withdrawal("400000000000000000", "50000000000", "20000")
	l.Apply(out)

	assert.Equal(t, "0.4", out.OutAmount.String())
	assert.Equal(t, "0.001", out.GasFee.String())
	assert.True(t, out.FeeCharged)
	assert.True(t, decimal.RequireFromString("0.599").Equal(l.Balance("ETH")))
	assert.True(t, decimal.RequireFromString("0.599").Equal(out.Balances["ETH"]))
	assert.Empty(t, out.Issues)
}

func TestApply_Conservation(t *testing.T) {
	l := New("ETH", eps)

	events := []*domain.CanonicalEvent{
		deposit("2000000000000000000"),
		withdrawal("300000000000000000", "1000000000", "21000"),
		{
			Direction:   domain.DirectionOut,
			Category:    domain.CategoryBuyOrder,
			Anchor:      domain.Record{GasPrice: wei("2000000000"), GasUsed: wei("150000")},
			InAsset:     "SHOP",
			InRaw:       wei("5000000000000000000000"),
			InDecimals:  18,
			OutAsset:    "ETH",
			OutRaw:      wei("500000000000000000"),
			OutDecimals: 18,
		},
		{
			Direction: domain.DirectionFeesOnly,
			Category:  domain.CategoryFeesOnly,
			Anchor:    domain.Record{GasPrice: wei("3000000000"), GasUsed: wei("46000")},
		},
	}
	for _, ev := range events {
		l.Apply(ev)
	}

	totals := l.Totals()
	for _, b := range l.Balances() {
		want := totals.In[b.Asset].Sub(totals.Out[b.Asset]).Sub(totals.Fees[b.Asset])
		assert.True(t, want.Equal(b.Amount), "asset %s: want %s got %s", b.Asset, want, b.Amount)
	}
	assert.Equal(t, "5000", l.Balance("SHOP").String())
}

func TestApply_EpsilonClamp(t *testing.T) {
	l := New("ETH", decimal.RequireFromString("0.001"))

	l.Apply(deposit("1000000000000000000"))
	ev := withdrawal("999999999999999999", "0", "0")
	l.Apply(ev)

	assert.True(t, l.Balance("ETH").IsZero())
	assert.True(t, ev.Balances["ETH"].IsZero())
	assert.Empty(t, ev.Issues)
}

func TestApply_EpsilonBoundaryIsClamped(t *testing.T) {
	l := New("ETH", decimal.RequireFromString("0.001"))

	l.Apply(deposit("1000000000000000000"))
	ev := withdrawal("1001000000000000000", "0", "0")
	l.Apply(ev)

	assert.True(t, l.Balance("ETH").IsZero())
	assert.True(t, ev.Balances["ETH"].IsZero())
	assert.Empty(t, ev.Issues)
}

func TestApply_NegativeDrift(t *testing.T) {
	l := New("ETH", eps)

	ev := withdrawal("100000000000000000", "0", "0")
	l.Apply(ev)

	require.Len(t, ev.Issues, 1)
	assert.Equal(t, domain.IssueNegativeBalanceDrift, ev.Issues[0].Kind)
	assert.Equal(t, "ETH", ev.Issues[0].Asset)
	assert.Equal(t, "-0.1", ev.Issues[0].Amount)
}

func TestApply_RouterRunningBalance(t *testing.T) {
	l := New("ETH", eps)

	l.Apply(&domain.CanonicalEvent{
		Direction:  domain.DirectionIn,
		Category:   domain.CategoryDeposit,
		InAsset:    "SPI",
		InRaw:      big.NewInt(250),
		InDecimals: 0,
	})

	swap := &domain.CanonicalEvent{
		Direction:      domain.Direction("SPI TokenSwap"),
		Category:       domain.CategoryTokenSwap,
		Anchor:         domain.Record{GasPrice: wei("1000000000"), GasUsed: wei("21000")},
		InAsset:        "SHOP",
		InRaw:          wei("7000000000000000000"),
		InDecimals:     18,
		OutAsset:       "SPI",
		OutFromBalance: true,
	}
	l.Apply(swap)

	assert.Equal(t, "250", swap.OutAmount.String())
	assert.True(t, l.Balance("SPI").IsZero())
	assert.Equal(t, "7", l.Balance("SHOP").String())
	// Router labels are not charged.
	assert.False(t, swap.FeeCharged)
	_, hasNative := swap.Balances["ETH"]
	assert.False(t, hasNative)
}

func TestScale(t *testing.T) {
	tests := []struct {
		raw      *big.Int
		decimals int32
		want     string
	}{
		{wei("1230000"), 6, "1.23"},
		{wei("5"), 0, "5"},
		{nil, 18, "0"},
		{wei("1"), 18, "0.000000000000000001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Scale(tt.raw, tt.decimals).String())
	}
}
