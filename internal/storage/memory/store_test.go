package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func testRecordSet() *domain.RecordSet {
	return &domain.RecordSet{
		Native: []domain.RawRecord{
			{Hash: "0x01", BlockNumber: "10", From: "0xa", To: "0xb", Value: "100"},
			{Hash: "0x02", BlockNumber: "11", From: "0xa", To: "0xc", Value: "5"},
		},
		Token: []domain.RawRecord{
			{Hash: "0x02", BlockNumber: "11", From: "0xc", To: "0xa", Value: "7", TokenSymbol: "USDT"},
		},
		Internal: []domain.RawRecord{
			{Hash: "0x03", BlockNumber: "12", From: "0xd", To: "0xa", Value: "9"},
		},
	}
}

func TestRawRecordStore_InsertAndGet(t *testing.T) {
	store := NewRawRecordStore()
	ctx := context.Background()

	n, err := store.InsertBulk(ctx, testWallet, testRecordSet())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Len(t, got.Native, 2)
	assert.Len(t, got.Token, 1)
	assert.Len(t, got.Internal, 1)
	assert.Equal(t, "0x02", got.Native[1].Hash)
}

func TestRawRecordStore_DuplicatesIgnored(t *testing.T) {
	store := NewRawRecordStore()
	ctx := context.Background()

	_, err := store.InsertBulk(ctx, testWallet, testRecordSet())
	require.NoError(t, err)

	set := testRecordSet()
	set.Native = append(set.Native, domain.RawRecord{Hash: "0x04", From: "0xa", To: "0xb", Value: "1"})
	n, err := store.InsertBulk(ctx, testWallet, set)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Len())
}

func TestRawRecordStore_LegsAtDifferentTracesKept(t *testing.T) {
	store := NewRawRecordStore()
	ctx := context.Background()

	leg := domain.RawRecord{Hash: "0x09", From: "0xa", To: "0xb", Value: "3", TraceID: "0_1"}
	other := leg
	other.TraceID = "0_2"

	n, err := store.InsertBulk(ctx, testWallet, &domain.RecordSet{Internal: []domain.RawRecord{leg, other, other}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRawRecordStore_UnknownWallet(t *testing.T) {
	store := NewRawRecordStore()

	got, err := store.GetByWallet(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	_, err = store.InsertBulk(context.Background(), testWallet, nil)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestRawRecordStore_ReturnsCopies(t *testing.T) {
	store := NewRawRecordStore()
	ctx := context.Background()
	_, err := store.InsertBulk(ctx, testWallet, testRecordSet())
	require.NoError(t, err)

	got, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	got.Native[0].Value = "mutated"

	again, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "100", again.Native[0].Value)
}

func snapshot(hash string, seq int) *domain.EventSnapshot {
	return &domain.EventSnapshot{
		ID:       hash + "-id",
		Wallet:   storage.WalletKey(testWallet),
		Method:   domain.MethodFIFO,
		TxHash:   hash,
		Seq:      seq,
		Category: domain.CategoryDeposit,
		Fields:   map[string]string{"hash": hash},
	}
}

func TestEventStore_ReplaceAndGet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.ReplaceByWallet(ctx, testWallet, domain.MethodFIFO, []*domain.EventSnapshot{
		snapshot("0x02", 1), snapshot("0x01", 0),
	})
	require.NoError(t, err)

	got, err := store.GetByWallet(ctx, testWallet, domain.MethodFIFO)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0x01", got[0].TxHash)
	assert.Equal(t, "0x02", got[1].TxHash)

	// Other methods are independent.
	other, err := store.GetByWallet(ctx, testWallet, domain.MethodLIFO)
	require.NoError(t, err)
	assert.Empty(t, other)

	err = store.ReplaceByWallet(ctx, testWallet, domain.MethodFIFO, []*domain.EventSnapshot{snapshot("0x03", 0)})
	require.NoError(t, err)
	got, err = store.GetByWallet(ctx, testWallet, domain.MethodFIFO)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0x03", got[0].TxHash)
}

func TestEventStore_GetByHash(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceByWallet(ctx, testWallet, domain.MethodFIFO, []*domain.EventSnapshot{snapshot("0xab", 0)}))

	got, err := store.GetByHash(ctx, testWallet, domain.MethodFIFO, "0xAB")
	require.NoError(t, err)
	assert.Equal(t, "0xab", got.Fields["hash"])

	got.Fields["hash"] = "mutated"
	again, err := store.GetByHash(ctx, testWallet, domain.MethodFIFO, "0xab")
	require.NoError(t, err)
	assert.Equal(t, "0xab", again.Fields["hash"])

	_, err = store.GetByHash(ctx, testWallet, domain.MethodFIFO, "0xcd")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.ReplaceByWallet(ctx, testWallet, "HIFO", nil)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	err = store.ReplaceByWallet(ctx, testWallet, domain.MethodFIFO, []*domain.EventSnapshot{snapshot("0x01", 0), snapshot("0x01", 1)})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}

func taxRow(hash string, seq, fy int) *domain.TaxRow {
	return &domain.TaxRow{
		Wallet:     storage.WalletKey(testWallet),
		Method:     domain.MethodFIFO,
		TxHash:     hash,
		Seq:        seq,
		FiscalYear: fy,
		Profit:     "1.00",
	}
}

func TestReportRowStore_InsertAndQuery(t *testing.T) {
	store := NewReportRowStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.TaxRow{
		taxRow("0x03", 2, 2024), taxRow("0x01", 0, 2023), taxRow("0x02", 1, 2024),
	})
	require.NoError(t, err)

	all, err := store.GetByWallet(ctx, testWallet, domain.MethodFIFO)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, []string{all[0].TxHash, all[1].TxHash, all[2].TxHash})

	fy, err := store.GetByFiscalYear(ctx, testWallet, domain.MethodFIFO, 2024)
	require.NoError(t, err)
	assert.Len(t, fy, 2)
}

func TestReportRowStore_Upsert(t *testing.T) {
	store := NewReportRowStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TaxRow{taxRow("0x01", 0, 2023)}))
	updated := taxRow("0x01", 0, 2023)
	updated.Profit = "2.00"
	require.NoError(t, store.InsertBulk(ctx, []*domain.TaxRow{updated}))

	all, err := store.GetByWallet(ctx, testWallet, domain.MethodFIFO)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2.00", all[0].Profit)

	err = store.InsertBulk(ctx, []*domain.TaxRow{{TxHash: "0x02"}})
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}
