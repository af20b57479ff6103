package normalizer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	aero = common.HexToAddress("0x940181a94A35A4569E4529A3CDfB74e38FD98631")
)

func newTestPoolRecord(lp common.Address, symbol string, poolType int64) RawRecord {
	rec := make(RawRecord, 32)
	for i := range rec {
		rec[i] = big.NewInt(0)
	}
	rec[0] = lp
	rec[1] = symbol
	rec[2] = uint8(18)
	rec[4] = big.NewInt(poolType)
	rec[5] = big.NewInt(-120)
	rec[7] = weth
	rec[8] = big.NewInt(2_000_000_000_000_000_000)
	rec[10] = usdc
	rec[11] = big.NewInt(4_000_000_000)
	for _, i := range []int{13, 16, 17, 18, 20, 29, 30, 31} {
		rec[i] = common.Address{}
	}
	rec[15] = true
	rec[28] = uint32(1_700_000_000)
	return rec
}

func TestNewPool(t *testing.T) {
	lp := common.HexToAddress("0x0000000000000000000000000000000000000101")

	t.Run("reads every field", func(t *testing.T) {
		p, err := NewPool(newTestPoolRecord(lp, "vAMM-WETH/USDC", -1))
		require.NoError(t, err)

		assert.Equal(t, lp, p.Address)
		assert.Equal(t, "vAMM-WETH/USDC", p.Symbol)
		assert.Equal(t, int64(-1), p.Type)
		assert.Equal(t, int64(-120), p.Tick)
		assert.Equal(t, weth, p.Token0)
		assert.Equal(t, usdc, p.Token1)
		assert.Equal(t, big.NewInt(4_000_000_000), p.Reserve1)
		assert.True(t, p.GaugeAlive)
		assert.Equal(t, uint64(1_700_000_000), p.CreatedAt)
		assert.False(t, p.Concentrated())
	})

	t.Run("root is optional", func(t *testing.T) {
		rec := newTestPoolRecord(lp, "x", 0)
		p, err := NewPool(rec[:31])
		require.NoError(t, err)
		assert.Equal(t, common.Address{}, p.Root)
	})

	t.Run("wrong arity is a structural error", func(t *testing.T) {
		rec := newTestPoolRecord(lp, "x", 0)
		_, err := NewPool(rec[:20])
		require.Error(t, err)

		var se *StructuralError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "lp", se.Record)
		assert.True(t, IsStructural(err))
	})

	t.Run("wrong field type is a structural error", func(t *testing.T) {
		rec := newTestPoolRecord(lp, "x", 0)
		rec[7] = "not an address"
		_, err := NewPool(rec)

		var se *StructuralError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "token0", se.Field)
	})

	t.Run("listing is deduplicated by address", func(t *testing.T) {
		other := common.HexToAddress("0x0000000000000000000000000000000000000202")
		pools, err := Pools([]RawRecord{
			newTestPoolRecord(lp, "first", 0),
			newTestPoolRecord(other, "other", 0),
			newTestPoolRecord(lp, "overlap", 0),
		})
		require.NoError(t, err)
		require.Len(t, pools, 2)
		assert.Equal(t, "first", pools[0].Symbol)
	})
}

func TestNewEpoch(t *testing.T) {
	lp := common.HexToAddress("0x0000000000000000000000000000000000000101")
	rec := RawRecord{
		big.NewInt(1_700_000_000),
		lp,
		new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
		big.NewInt(5e17),
		[]any{[]any{aero, big.NewInt(7e18)}},
		[]any{[]any{weth, big.NewInt(1e15)}, []any{usdc, big.NewInt(2_500_000)}},
	}

	e, err := NewEpoch(rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_000), e.Timestamp)
	assert.Equal(t, lp, e.Pool)
	assert.True(t, decimal.NewFromInt(3).Equal(e.Votes))
	assert.True(t, decimal.RequireFromString("0.5").Equal(e.Emissions))
	require.Len(t, e.Incentives, 1)
	assert.Equal(t, aero, e.Incentives[0].Token)
	require.Len(t, e.Fees, 2)
	assert.Equal(t, big.NewInt(2_500_000), e.Fees[1].Amount)

	t.Run("malformed pair", func(t *testing.T) {
		bad := append(RawRecord(nil), rec...)
		bad[4] = []any{[]any{aero}}
		_, err := NewEpoch(bad)
		assert.True(t, IsStructural(err))
	})
}

func TestNewVeNFT(t *testing.T) {
	lpA := common.HexToAddress("0x000000000000000000000000000000000000000a")
	lpB := common.HexToAddress("0x000000000000000000000000000000000000000b")
	rec := RawRecord{
		big.NewInt(42),
		common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		uint8(18),
		big.NewInt(9e18),
		big.NewInt(9e18),
		big.NewInt(8e18),
		big.NewInt(0),
		big.NewInt(1_800_000_000),
		big.NewInt(1_700_000_000),
		[]any{[]any{lpA, big.NewInt(2e18)}, []any{lpB, big.NewInt(6e18)}},
		aero,
		false,
		big.NewInt(0),
		big.NewInt(0),
	}

	v, err := NewVeNFT(rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.ID)
	assert.True(t, decimal.NewFromInt(8).Equal(v.GovernanceAmount))
	require.Len(t, v.Votes, 2)
	assert.True(t, decimal.RequireFromString("0.25").Equal(v.Votes[0].Ratio))
	assert.True(t, decimal.RequireFromString("0.75").Equal(v.Votes[1].Ratio))

	id, err := RecordID(rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	t.Run("no governance amount means no weights", func(t *testing.T) {
		zero := append(RawRecord(nil), rec...)
		zero[5] = big.NewInt(0)
		v, err := NewVeNFT(zero)
		require.NoError(t, err)
		assert.Empty(t, v.Votes)
	})
}

func TestRelays(t *testing.T) {
	relayRecord := func(id int64, inactive bool) RawRecord {
		return RawRecord{
			big.NewInt(id), uint8(18), big.NewInt(1e18), big.NewInt(1e18), big.NewInt(4e18), big.NewInt(0),
			[]any{[]any{aero, big.NewInt(1e18)}},
			aero, big.NewInt(0), big.NewInt(0), big.NewInt(0),
			common.Address{}, common.Address{}, inactive, "Relay", []any{},
		}
	}

	relays, err := Relays([]RawRecord{relayRecord(1, false), relayRecord(2, true), relayRecord(1, false)}, true)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, uint64(1), relays[0].VeNFTID)
	require.Len(t, relays[0].Votes, 1)
	assert.True(t, decimal.RequireFromString("0.25").Equal(relays[0].Votes[0].Ratio))

	all, err := Relays([]RawRecord{relayRecord(1, false), relayRecord(2, true)}, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type stubDecimals struct {
	calls int
	value uint8
	err   error
}

func (s *stubDecimals) Decimals(context.Context, common.Address) (uint8, error) {
	s.calls++
	return s.value, s.err
}

// stubMetadata also serves symbols; tokens missing from symbols revert.
type stubMetadata struct {
	stubDecimals
	symbols     map[common.Address]string
	symbolCalls int
}

func (s *stubMetadata) Symbol(_ context.Context, token common.Address) (string, error) {
	s.symbolCalls++
	sym, ok := s.symbols[token]
	if !ok {
		return "", errors.New("execution reverted")
	}
	return sym, nil
}

func TestTokenIndex(t *testing.T) {
	ctx := context.Background()
	tokens, err := Tokens([]RawRecord{
		{usdc, "USDC", uint8(6), big.NewInt(0), true, false},
		{aero, "AERO", uint8(18), big.NewInt(0), false, true},
	}, true)
	require.NoError(t, err)
	require.Len(t, tokens, 1, "unlisted tokens are filtered")

	t.Run("listed token", func(t *testing.T) {
		fetcher := &stubDecimals{value: 9}
		idx := NewTokenIndex(tokens, fetcher)
		assert.Equal(t, uint8(6), idx.Decimals(ctx, usdc))
		assert.Equal(t, "USDC", idx.Symbol(ctx, usdc))
		assert.Zero(t, fetcher.calls)
	})

	t.Run("unknown token is fetched once", func(t *testing.T) {
		fetcher := &stubDecimals{value: 8}
		idx := NewTokenIndex(tokens, fetcher)
		assert.Equal(t, uint8(8), idx.Decimals(ctx, aero))
		assert.Equal(t, uint8(8), idx.Decimals(ctx, aero))
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("fetch failure defaults to 18", func(t *testing.T) {
		idx := NewTokenIndex(nil, &stubDecimals{err: errors.New("execution reverted")})
		assert.Equal(t, DefaultDecimals, idx.Decimals(ctx, weth))
		assert.Equal(t, DefaultDecimals, NewTokenIndex(nil, nil).Decimals(ctx, weth))
	})

	t.Run("concentrated pool symbol", func(t *testing.T) {
		idx := NewTokenIndex([]Token{{Address: weth, Symbol: "WETH"}, {Address: usdc, Symbol: "USDC"}}, nil)
		p := Pool{Type: 100, Token0: weth, Token1: usdc}
		assert.Equal(t, "CL100-WETH/USDC", PoolSymbol(ctx, p, idx))

		p.Token1 = aero
		assert.Equal(t, "CL100-WETH/Unknown", PoolSymbol(ctx, p, idx))

		p.Symbol = "named"
		assert.Equal(t, "named", PoolSymbol(ctx, p, idx))
	})

	t.Run("unlisted symbol is read from chain once", func(t *testing.T) {
		fetcher := &stubMetadata{stubDecimals: stubDecimals{value: 18}, symbols: map[common.Address]string{aero: "AERO"}}
		idx := NewTokenIndex([]Token{{Address: weth, Symbol: "WETH"}}, fetcher)
		p := Pool{Type: 200, Token0: weth, Token1: aero}
		assert.Equal(t, "CL200-WETH/AERO", PoolSymbol(ctx, p, idx))
		assert.Equal(t, "AERO", idx.Symbol(ctx, aero))
		assert.Equal(t, 1, fetcher.symbolCalls, "listed tokens are not fetched and fetched ones are remembered")

		p.Token0 = usdc
		assert.Equal(t, "CL200-Unknown/AERO", PoolSymbol(ctx, p, idx), "a failed read falls back to Unknown")
		assert.Equal(t, "", idx.Symbol(ctx, usdc))
		assert.Equal(t, 2, fetcher.symbolCalls)
	})
}
