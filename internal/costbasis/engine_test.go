package costbasis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-tax-ledger/internal/domain"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return t0.Add(time.Duration(n) * 24 * time.Hour)
}

func buy(qty, price string, at time.Time) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		Timestamp: at,
		Category:  domain.CategoryBuyOrder,
		InAsset:   "SHOP",
		InAmount:  d(qty),
		InPrice:   d(price),
	}
}

func sell(qty, price string, at time.Time) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		Timestamp: at,
		Category:  domain.CategorySellOrder,
		OutAsset:  "SHOP",
		OutAmount: d(qty),
		OutPrice:  d(price),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestFIFO_Example(t *testing.T) {
	queue := []domain.Lot{
		{Quantity: d("3"), Cost: d("30"), AcquiredAt: day(0)},
		{Quantity: d("10"), Cost: d("150"), AcquiredAt: day(1)},
	}

	portions, rest := FIFO{}.Consume(queue, d("5"))

	require.Len(t, portions, 2)
	cost := portions[0].Cost.Add(portions[1].Cost)
	assertDec(t, "60", cost)

	require.Len(t, rest, 1)
	assertDec(t, "8", rest[0].Quantity)
	assertDec(t, "120", rest[0].Cost)
	assert.Equal(t, day(1), rest[0].AcquiredAt)

	// Input untouched.
	assertDec(t, "3", queue[0].Quantity)
}

func TestLIFO_TakesNewestFirst(t *testing.T) {
	queue := []domain.Lot{
		{Quantity: d("3"), Cost: d("30"), AcquiredAt: day(0)},
		{Quantity: d("10"), Cost: d("150"), AcquiredAt: day(1)},
	}

	portions, rest := LIFO{}.Consume(queue, d("12"))

	require.Len(t, portions, 2)
	assert.Equal(t, day(1), portions[0].AcquiredAt)
	assertDec(t, "150", portions[0].Cost)
	assertDec(t, "20", portions[1].Cost)

	require.Len(t, rest, 1)
	assertDec(t, "1", rest[0].Quantity)
	assertDec(t, "10", rest[0].Cost)
}

func TestWAC_AveragesPool(t *testing.T) {
	queue := []domain.Lot{
		{Quantity: d("1"), Cost: d("10"), AcquiredAt: day(0)},
		{Quantity: d("3"), Cost: d("50"), AcquiredAt: day(1)},
	}

	portions, rest := WAC{}.Consume(queue, d("2"))

	// Average unit cost 15.
	var cost decimal.Decimal
	for _, p := range portions {
		cost = cost.Add(p.Cost)
	}
	assertDec(t, "30", cost)

	_, restCost := sum(rest)
	assertDec(t, "30", restCost)
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    domain.AccountingMethod
		wantErr bool
	}{
		{"FIFO", domain.MethodFIFO, false},
		{"lifo", domain.MethodLIFO, false},
		{" WAC ", domain.MethodWAC, false},
		{"HIFO", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FromName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.ID())
		})
	}
}

func TestEngine_HoldingPeriodBoundary(t *testing.T) {
	tests := []struct {
		name      string
		heldDays  int
		wantLong  string
		wantShort string
	}{
		{name: "365 days is short-term", heldDays: 365, wantLong: "0", wantShort: "50"},
		{name: "366 days is long-term", heldDays: 366, wantLong: "50", wantShort: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(FIFO{}, 0)
			e.Apply(buy("1", "100", day(0)))

			ev := sell("1", "150", day(tt.heldDays))
			e.Apply(ev)

			assertDec(t, "50", ev.Profit)
			assertDec(t, tt.wantLong, ev.LongTermGain)
			assertDec(t, tt.wantShort, ev.ShortTermGain)
		})
	}
}

func TestEngine_MixedHoldingSplit(t *testing.T) {
	e := NewEngine(FIFO{}, 0)
	e.Apply(buy("1", "100", day(0)))
	e.Apply(buy("1", "200", day(300)))

	ev := sell("2", "300", day(400))
	ev.FeeCharged = true
	ev.GasFee = d("0.01")
	ev.NativePrice = d("1000")
	e.Apply(ev)

	// Proceeds 600, fee 10 split evenly by quantity.
	assertDec(t, "600", ev.Proceeds)
	assertDec(t, "10", ev.FeeValue)
	assertDec(t, "290", ev.Profit)
	assertDec(t, "195", ev.LongTermGain)
	assertDec(t, "95", ev.ShortTermGain)
	assertDec(t, "100", ev.LongTermBasis)
	assertDec(t, "200", ev.ShortTermBasis)
	assert.True(t, ev.LongTermGain.Add(ev.ShortTermGain).Equal(ev.Profit))
}

func TestEngine_OverDisposal(t *testing.T) {
	e := NewEngine(FIFO{}, 0)
	e.Apply(buy("1", "100", day(0)))

	ev := sell("1.5", "200", day(10))
	e.Apply(ev)

	require.True(t, ev.HasIssue(domain.IssueOverDisposal))
	assert.Equal(t, "0.5", ev.Issues[0].Amount)
	assertDec(t, "0.5", ev.Shortfall)
	assertDec(t, "100", ev.ConsumedCost)
	assertDec(t, "200", ev.Profit)
	assertDec(t, "200", ev.ShortTermGain)
	assert.True(t, e.Holdings("SHOP").IsZero())
	assert.Empty(t, e.Lots("SHOP"))
}

func TestEngine_DepositsHaveZeroCost(t *testing.T) {
	e := NewEngine(FIFO{}, 0)
	ev := &domain.CanonicalEvent{
		Timestamp: day(0),
		Category:  domain.CategoryDepositNative,
		InAsset:   "ETH",
		InAmount:  d("1"),
		InPrice:   d("2000"),
	}
	e.Apply(ev)

	assert.True(t, ev.Cost.IsZero())
	assert.Equal(t, domain.MethodFIFO, ev.Method)
	assertDec(t, "1", e.Holdings("ETH"))
}

func TestEngine_BuyCostFallsBackToOutboundSide(t *testing.T) {
	e := NewEngine(FIFO{}, 0)
	ev := buy("100", "0", day(0))
	ev.OutAsset = "ETH"
	ev.OutAmount = d("0.5")
	ev.OutPrice = d("2000")
	e.Apply(ev)

	assertDec(t, "1000", ev.Cost)
}

func TestEngine_LotConservation(t *testing.T) {
	for _, m := range []Method{FIFO{}, LIFO{}, WAC{}} {
		t.Run(string(m.ID()), func(t *testing.T) {
			e := NewEngine(m, 0)
			e.Apply(buy("3", "10", day(0)))
			e.Apply(buy("10", "15", day(1)))
			e.Apply(sell("5", "20", day(2)))
			e.Apply(buy("2", "12", day(3)))
			e.Apply(sell("4.5", "20", day(4)))

			// acquired 15, matched 9.5
			assertDec(t, "5.5", e.Holdings("SHOP"))
			for _, lot := range e.Lots("SHOP") {
				assert.False(t, lot.Quantity.IsNegative())
			}
		})
	}
}

func TestEngine_IgnoresNonLotCategories(t *testing.T) {
	e := NewEngine(FIFO{}, 0)
	e.Apply(buy("1", "100", day(0)))

	for _, cat := range []domain.Category{domain.CategoryTokenSwap, domain.CategoryFeesOnly, domain.CategoryUnresolved} {
		ev := sell("1", "100", day(1))
		ev.Category = cat
		e.Apply(ev)
		assert.True(t, ev.Profit.IsZero())
	}
	assertDec(t, "1", e.Holdings("SHOP"))
}
