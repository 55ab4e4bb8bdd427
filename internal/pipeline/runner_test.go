package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-tax-ledger/internal/config"
	"eth-tax-ledger/internal/costbasis"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/price"
	"eth-tax-ledger/internal/reporting"
	"eth-tax-ledger/internal/storage/memory"
)

const (
	walletHex   = "0x1111111111111111111111111111111111111111"
	exchangeHex = "0x3333333333333333333333333333333333333333"
	friendHex   = "0x4444444444444444444444444444444444444444"
)

var wallet = common.HexToAddress(walletHex)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Wallets = []config.WalletConfig{{Name: "main", Address: walletHex}}
	cfg.Pricing.Provider = config.ProviderStatic
	cfg.Pricing.Static = map[string]float64{"ETHUSDT": 2000}
	return &cfg
}

func newRunner(t *testing.T, oracle price.Oracle, stores Stores) *Runner {
	t.Helper()
	r, err := FromConfig(testConfig(), oracle, stores)
	require.NoError(t, err)
	r.opts.Logger = logger.Discard()
	r.log = r.opts.Logger.WithComponent("pipeline")
	return r
}

func ethOracle() price.Oracle {
	return price.NewStaticOracle(map[string]float64{"ETHUSDT": 2000})
}

// depositAndWithdraw is 1.0 ETH in, then 0.4 ETH out paying 0.001 ETH gas.
func depositAndWithdraw() *domain.RecordSet {
	return &domain.RecordSet{
		Native: []domain.RawRecord{
			{
				Hash: "0xaa01", BlockNumber: "100", TimeStamp: "1700000000",
				From: exchangeHex, To: walletHex, Value: "1000000000000000000",
				GasPrice: "50000000000", GasUsed: "21000", IsError: "0", MethodID: "0x",
			},
			{
				Hash: "0xaa02", BlockNumber: "200", TimeStamp: "1700086400",
				From: walletHex, To: friendHex, Value: "400000000000000000",
				GasPrice: "50000000000", GasUsed: "20000", IsError: "0", MethodID: "0x",
			},
		},
	}
}

func TestRun_DepositThenWithdraw(t *testing.T) {
	r := newRunner(t, ethOracle(), Stores{})

	res, err := r.Run(context.Background(), wallet, depositAndWithdraw())
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	dep, wd := res.Events[0], res.Events[1]
	assert.Equal(t, domain.CategoryDepositNative, dep.Category)
	assert.Equal(t, domain.CategoryWithdrawal, wd.Category)
	assert.False(t, dep.FeeCharged)
	assert.True(t, wd.FeeCharged)

	assert.Equal(t, "0.001", wd.GasFee.String())
	assert.Equal(t, "800", wd.Proceeds.String())
	assert.Equal(t, "798", wd.Profit.String())
	assert.Equal(t, "798", wd.ShortTermGain.String())
	assert.True(t, wd.LongTermGain.IsZero())
	assert.Empty(t, wd.Issues)

	require.Len(t, res.Balances, 1)
	assert.Equal(t, "ETH", res.Balances[0].Asset)
	assert.Equal(t, "0.599", res.Balances[0].Amount.String())

	assert.Equal(t, 1, res.CategoryCounts[domain.CategoryDepositNative])
	assert.Equal(t, 1, res.CategoryCounts[domain.CategoryWithdrawal])
	assert.Equal(t, domain.MethodFIFO, res.Method)
	assert.Equal(t, 2023, wd.FiscalYear)
}

func TestRun_IdenticalOutputAcrossRuns(t *testing.T) {
	r := newRunner(t, ethOracle(), Stores{})

	render := func() ([]byte, []byte) {
		res, err := r.Run(context.Background(), wallet, depositAndWithdraw())
		require.NoError(t, err)

		var tax, events bytes.Buffer
		require.NoError(t, reporting.RenderTaxCSV(&tax, reporting.BuildTaxRows(res.Events, res.Method)))
		require.NoError(t, reporting.RenderEventsCSV(&events, res.Events))
		return tax.Bytes(), events.Bytes()
	}

	tax1, events1 := render()
	tax2, events2 := render()
	assert.Equal(t, tax1, tax2)
	assert.Equal(t, events1, events2)
}

func TestRun_RecordsSharingHashMergeIntoOneEvent(t *testing.T) {
	set := &domain.RecordSet{
		Native: []domain.RawRecord{{
			Hash: "0xbb01", BlockNumber: "300", TimeStamp: "1700000000",
			From: walletHex, To: exchangeHex, Value: "0",
			GasPrice: "1", GasUsed: "1", MethodID: "0x12345678", FunctionName: "swapExactTokensForETH(uint256)",
		}},
		Token: []domain.RawRecord{{
			Hash: "0xbb01", BlockNumber: "300", TimeStamp: "1700000000",
			From: walletHex, To: exchangeHex, Value: "5000000", TokenSymbol: "USDT", TokenDecimal: "6",
		}},
		Internal: []domain.RawRecord{{
			Hash: "0xbb01", BlockNumber: "300", TimeStamp: "1700000000",
			From: exchangeHex, To: walletHex, Value: "2000000000000000",
		}},
	}

	r := newRunner(t, ethOracle(), Stores{})
	res, err := r.Run(context.Background(), wallet, set)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.True(t, ev.HasNativeRecord)
	assert.True(t, ev.HasTokenTransferRecord)
	assert.True(t, ev.HasInternalTransactionRecord)
}

func TestRun_DroppedRecordsAreReported(t *testing.T) {
	set := depositAndWithdraw()
	set.Native = append(set.Native, domain.RawRecord{Hash: "0xaa03", TimeStamp: "1700090000", To: walletHex, Value: "1"})

	r := newRunner(t, ethOracle(), Stores{})
	res, err := r.Run(context.Background(), wallet, set)
	require.NoError(t, err)

	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "0xaa03", res.Dropped[0].TxHash)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "missing mandatory field")
	assert.Len(t, res.Events, 2)
}

func TestRun_MissingPriceBecomesIssue(t *testing.T) {
	r := newRunner(t, price.NewStaticOracle(nil), Stores{})

	res, err := r.Run(context.Background(), wallet, depositAndWithdraw())
	require.NoError(t, err)

	wd := res.Events[1]
	require.True(t, wd.HasIssue(domain.IssuePriceUnavailable))
	assert.Equal(t, "ETHUSDT", wd.Issues[0].Asset)
	assert.True(t, wd.Profit.IsZero())
	assert.Equal(t, 1, res.IssueCounts[domain.IssuePriceUnavailable])
	assert.Greater(t, res.PriceFailures, 0)
}

func TestRun_UnpricedAssetDisposalBecomesIssue(t *testing.T) {
	const shopHex = "0x5555555555555555555555555555555555555555"
	set := &domain.RecordSet{
		Native: []domain.RawRecord{{
			Hash: "0xcc02", BlockNumber: "500", TimeStamp: "1700086400",
			From: walletHex, To: shopHex, Value: "0",
			GasPrice: "50000000000", GasUsed: "40000", IsError: "0", MethodID: "0xa9059cbb",
		}},
		Token: []domain.RawRecord{
			{
				Hash: "0xcc01", BlockNumber: "400", TimeStamp: "1700000000",
				From: exchangeHex, To: walletHex, Value: "10000000000000000000",
				TokenSymbol: "SHOP", TokenDecimal: "18", ContractAddress: shopHex,
			},
			{
				Hash: "0xcc02", BlockNumber: "500", TimeStamp: "1700086400",
				From: walletHex, To: friendHex, Value: "4000000000000000000",
				TokenSymbol: "SHOP", TokenDecimal: "18", ContractAddress: shopHex,
			},
		},
	}

	r := newRunner(t, ethOracle(), Stores{})
	res, err := r.Run(context.Background(), wallet, set)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	dep, wd := res.Events[0], res.Events[1]
	assert.Equal(t, domain.CategoryDeposit, dep.Category)
	require.Equal(t, domain.CategoryWithdrawal, wd.Category)
	assert.Equal(t, "SHOP", wd.OutAsset)
	assert.Equal(t, "4", wd.OutAmount.String())

	require.True(t, wd.HasIssue(domain.IssuePriceUnavailable))
	var found bool
	for _, issue := range wd.Issues {
		if issue.Kind == domain.IssuePriceUnavailable {
			found = true
			assert.Equal(t, "SHOP", issue.Asset)
			assert.Contains(t, issue.Detail, "unpriced asset")
		}
	}
	assert.True(t, found)
	assert.True(t, wd.Proceeds.IsZero())
	assert.Equal(t, 1, res.IssueCounts[domain.IssuePriceUnavailable])
}

func TestRun_PersistsEventsAndRows(t *testing.T) {
	events := memory.NewEventStore()
	rows := memory.NewReportRowStore()
	r := newRunner(t, ethOracle(), Stores{Events: events, Reports: rows})
	ctx := context.Background()

	_, err := r.Run(ctx, wallet, depositAndWithdraw())
	require.NoError(t, err)

	stored, err := events.GetByWallet(ctx, wallet, domain.MethodFIFO)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "0xaa02", stored[1].TxHash)
	assert.Equal(t, "798", stored[1].Fields["profit"])

	taxRows, err := rows.GetByFiscalYear(ctx, wallet, domain.MethodFIFO, 2023)
	require.NoError(t, err)
	require.Len(t, taxRows, 2)
	assert.Equal(t, "798.00", taxRows[1].Profit)

	// A second run replaces rather than appends.
	_, err = r.Run(ctx, wallet, depositAndWithdraw())
	require.NoError(t, err)
	stored, err = events.GetByWallet(ctx, wallet, domain.MethodFIFO)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// Without persistence nothing changes for another method.
	lifo := r.WithMethod(costbasis.LIFO{}).WithoutPersistence()
	res, err := lifo.Run(ctx, wallet, depositAndWithdraw())
	require.NoError(t, err)
	assert.Equal(t, domain.MethodLIFO, res.Method)
	none, err := events.GetByWallet(ctx, wallet, domain.MethodLIFO)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRun_CancelledContext(t *testing.T) {
	r := newRunner(t, ethOracle(), Stores{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, wallet, depositAndWithdraw())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
