package resolve

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-tax-ledger/internal/domain"
)

var (
	wallet   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contract = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func token(from, to common.Address, asset string, raw int64, decimals int32) domain.Record {
	return domain.Record{
		Kind:      domain.KindToken,
		From:      from,
		To:        to,
		Asset:     asset,
		RawAmount: big.NewInt(raw),
		Decimals:  decimals,
	}
}

func internal(from, to common.Address, raw int64) domain.Record {
	return domain.Record{
		Kind:      domain.KindInternal,
		From:      from,
		To:        to,
		Asset:     "ETH",
		RawAmount: big.NewInt(raw),
		Decimals:  18,
	}
}

func nativeEvent(from, to common.Address, raw int64, method string, dir domain.Direction) *domain.CanonicalEvent {
	anchor := domain.Record{
		Kind:      domain.KindNative,
		TxHash:    "0xabc",
		From:      from,
		To:        to,
		Asset:     "ETH",
		RawAmount: big.NewInt(raw),
		Decimals:  18,
		MethodID:  method,
	}
	return &domain.CanonicalEvent{
		Wallet:    wallet,
		TxHash:    "0xabc",
		Anchor:    anchor,
		Direction: dir,
	}
}

func TestTokenFlow_TokenSwap(t *testing.T) {
	ev := nativeEvent(wallet, contract, 0, "0x12345678", domain.DirectionOut)
	legs := domain.Legs{Token: []domain.Record{
		token(wallet, contract, "USDC", 500, 6),
		token(contract, wallet, "DAI", 499, 18),
		token(contract, wallet, "WBTC", 1, 8),
	}}

	r := &TokenFlow{Precedence: InternalFirst}
	require.NoError(t, r.Resolve(ev, legs))

	assert.Equal(t, "USDC", ev.OutAsset)
	assert.Equal(t, int64(500), ev.OutRaw.Int64())
	assert.Equal(t, int32(6), ev.OutDecimals)
	assert.Equal(t, "DAI", ev.InAsset)
	assert.Equal(t, int64(499), ev.InRaw.Int64())
}

func TestTokenFlow_MissingLeg(t *testing.T) {
	ev := nativeEvent(wallet, contract, 0, "", domain.DirectionOut)
	legs := domain.Legs{Token: []domain.Record{token(wallet, contract, "USDC", 500, 6)}}

	err := (&TokenFlow{}).Resolve(ev, legs)
	assert.ErrorIs(t, err, ErrMissingLeg)

	err = (&TokenFlow{}).Resolve(ev, domain.Legs{})
	assert.ErrorIs(t, err, ErrMissingLeg)
}

func TestTokenFlow_InternalIgnoredUnlessEnabled(t *testing.T) {
	ev := nativeEvent(wallet, contract, 0, "", domain.DirectionOut)
	legs := domain.Legs{
		Token:    []domain.Record{token(wallet, contract, "SHOP", 10, 18)},
		Internal: []domain.Record{internal(contract, wallet, 7)},
	}

	assert.ErrorIs(t, (&TokenFlow{}).Resolve(ev, legs), ErrMissingLeg)

	require.NoError(t, (&TokenFlow{IncludeInternal: true}).Resolve(ev, legs))
	assert.Equal(t, "SHOP", ev.OutAsset)
	assert.Equal(t, "ETH", ev.InAsset)
	assert.Equal(t, int64(7), ev.InRaw.Int64())
}

func TestTokenFlow_Precedence(t *testing.T) {
	legs := domain.Legs{
		Token: []domain.Record{
			token(wallet, contract, "SHOP", 10, 18),
			token(contract, wallet, "WETH", 5, 18),
		},
		Internal: []domain.Record{internal(contract, wallet, 7)},
	}

	tests := []struct {
		name       string
		precedence LegPrecedence
		wantIn     string
		wantRaw    int64
	}{
		{name: "internal first", precedence: InternalFirst, wantIn: "ETH", wantRaw: 7},
		{name: "token first", precedence: TokenFirst, wantIn: "WETH", wantRaw: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := nativeEvent(wallet, contract, 0, "", domain.DirectionOut)
			r := &TokenFlow{IncludeInternal: true, Precedence: tt.precedence}
			require.NoError(t, r.Resolve(ev, legs))
			assert.Equal(t, tt.wantIn, ev.InAsset)
			assert.Equal(t, tt.wantRaw, ev.InRaw.Int64())
		})
	}
}

func TestSingleLeg_NativeBuy(t *testing.T) {
	ev := nativeEvent(wallet, contract, 2000, "0x7ff36ab5", domain.DirectionOut)
	legs := domain.Legs{Token: []domain.Record{token(contract, wallet, "SHOP", 100, 18)}}

	require.NoError(t, (&SingleLeg{}).Resolve(ev, legs))

	assert.Equal(t, "SHOP", ev.InAsset)
	assert.Equal(t, "ETH", ev.OutAsset)
	assert.Equal(t, int64(2000), ev.OutRaw.Int64())
}

func TestSingleLeg_PlainNativeTransfer(t *testing.T) {
	out := nativeEvent(wallet, contract, 400, "0x", domain.DirectionOut)
	require.NoError(t, (&SingleLeg{}).Resolve(out, domain.Legs{}))
	assert.Equal(t, "ETH", out.OutAsset)
	assert.Empty(t, out.InAsset)

	in := nativeEvent(contract, wallet, 1000, "", domain.DirectionIn)
	require.NoError(t, (&SingleLeg{}).Resolve(in, domain.Legs{}))
	assert.Equal(t, "ETH", in.InAsset)
	assert.Equal(t, int64(1000), in.InRaw.Int64())
	assert.Empty(t, in.OutAsset)
}

func TestSingleLeg_TokenDeposit(t *testing.T) {
	dep := token(contract, wallet, "SHOP", 42, 18)
	ev := &domain.CanonicalEvent{Wallet: wallet, TxHash: "0xdef", Anchor: dep, Direction: domain.DirectionIn}

	require.NoError(t, (&SingleLeg{}).Resolve(ev, domain.Legs{Token: []domain.Record{dep}}))
	assert.Equal(t, "SHOP", ev.InAsset)
	assert.Empty(t, ev.OutAsset)
}

func TestSingleLeg_InternalOutPrecedence(t *testing.T) {
	legs := domain.Legs{
		Token:    []domain.Record{token(wallet, contract, "SHOP", 10, 18)},
		Internal: []domain.Record{internal(wallet, contract, 3)},
	}

	ev := nativeEvent(wallet, contract, 0, "0x", domain.DirectionOut)
	require.NoError(t, (&SingleLeg{Precedence: InternalFirst}).Resolve(ev, legs))
	assert.Equal(t, "ETH", ev.OutAsset)

	ev = nativeEvent(wallet, contract, 0, "0x", domain.DirectionOut)
	require.NoError(t, (&SingleLeg{Precedence: TokenFirst}).Resolve(ev, legs))
	assert.Equal(t, "SHOP", ev.OutAsset)
}

func TestSingleLeg_NothingResolvable(t *testing.T) {
	ev := nativeEvent(wallet, contract, 0, "0xa9059cbb", domain.DirectionOut)
	err := (&SingleLeg{}).Resolve(ev, domain.Legs{})
	assert.ErrorIs(t, err, ErrMissingLeg)
}

func TestRouterSwap_Sources(t *testing.T) {
	t.Run("running balance", func(t *testing.T) {
		ev := nativeEvent(contract, wallet, 5000, "", domain.DirectionIn)
		r := &RouterSwap{OutAsset: "SPI", InAsset: "SHOP", InDecimals: 18, Source: FromRunningBalance}

		require.NoError(t, r.Resolve(ev, domain.Legs{}))
		assert.Equal(t, "SHOP", ev.InAsset)
		assert.Equal(t, int64(5000), ev.InRaw.Int64())
		assert.Equal(t, "SPI", ev.OutAsset)
		assert.True(t, ev.OutFromBalance)
		assert.Nil(t, ev.OutRaw)
		assert.Equal(t, int32(0), ev.OutDecimals)
	})

	t.Run("transaction value", func(t *testing.T) {
		ev := nativeEvent(contract, wallet, 5000, "", domain.DirectionIn)
		r := &RouterSwap{OutAsset: "SPI", OutDecimals: 2, InAsset: "SHOP", InDecimals: 18, Source: FromTransactionValue}

		require.NoError(t, r.Resolve(ev, domain.Legs{}))
		assert.False(t, ev.OutFromBalance)
		assert.Equal(t, int64(5000), ev.OutRaw.Int64())
		assert.Equal(t, int32(2), ev.OutDecimals)
	})
}

func TestParsePrecedence(t *testing.T) {
	assert.Equal(t, TokenFirst, ParsePrecedence("token-first"))
	assert.Equal(t, InternalFirst, ParsePrecedence("internal-first"))
	assert.Equal(t, InternalFirst, ParsePrecedence(""))
}
