package aggregator

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/defistate/sugar-client-go/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85")
	velo = common.HexToAddress("0x9560e827aF36c94D2Ac33a39bCE1Fe78631088Db")
	junk = common.HexToAddress("0x00000000000000000000000000000000000000dd")

	poolA = common.HexToAddress("0x000000000000000000000000000000000000a001")
	poolB = common.HexToAddress("0x000000000000000000000000000000000000b002")
	poolC = common.HexToAddress("0x000000000000000000000000000000000000c003")
)

type mapSource map[common.Address]decimal.Decimal

func (m mapSource) Name() pricing.SourceName { return pricing.SourceOracle }

func (m mapSource) Resolve(_ context.Context, token common.Address) (decimal.Decimal, bool) {
	p, ok := m[token]
	return p, ok
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// units returns v * 10^decimals.
func units(v int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	resolver, err := pricing.NewResolver(pricing.ResolverConfig{Sources: []pricing.Source{mapSource{
		weth: dec("2000"),
		usdc: dec("1"),
		velo: dec("0.5"),
	}}})
	require.NoError(t, err)

	tokens := normalizer.NewTokenIndex([]normalizer.Token{
		{Address: weth, Symbol: "WETH", Decimals: 18, Listed: true},
		{Address: usdc, Symbol: "USDC", Decimals: 6, Listed: true},
		{Address: velo, Symbol: "VELO", Decimals: 18, Listed: true},
	}, nil)

	agg, err := New(Config{Prices: resolver, Tokens: tokens})
	require.NoError(t, err)
	return agg
}

func testPools() []normalizer.Pool {
	return []normalizer.Pool{
		{
			Address: poolA, Symbol: "vAMM-WETH/USDC", Type: -1, GaugeAlive: true,
			Token0: weth, Reserve0: units(2, 18), Token0Fees: units(1, 16),
			Token1: usdc, Reserve1: units(4000, 6), Token1Fees: big.NewInt(0),
		},
		{
			Address: poolB, Type: 200, GaugeAlive: true,
			Token0: velo, Reserve0: units(1000, 18),
			Token1: usdc, Reserve1: units(500, 6),
		},
		{
			Address: poolC, Symbol: "vAMM-WETH/JUNK", Type: -1,
			Token0: weth, Reserve0: units(1, 18),
			Token1: junk, Reserve1: units(1, 18),
		},
	}
}

func testEpochs() []normalizer.Epoch {
	return []normalizer.Epoch{
		{
			Pool:  poolA,
			Votes: dec("100"),
			Incentives: []normalizer.TokenAmount{
				{Token: velo, Amount: units(10, 18)},
				{Token: junk, Amount: units(100, 18)},
			},
			Fees: []normalizer.TokenAmount{{Token: usdc, Amount: big.NewInt(2_500_000)}},
		},
		{
			Pool:       poolB,
			Incentives: []normalizer.TokenAmount{{Token: weth, Amount: units(1, 15)}},
		},
		{Pool: poolA, Votes: dec("999")},
	}
}

func TestCombineInnerJoin(t *testing.T) {
	ds := newTestAggregator(t).Combine(context.Background(), testPools(), testEpochs(), true)

	require.Len(t, ds.Rows, 2, "only pools with an epoch are kept")
	assert.Equal(t, 3, ds.TotalPools)
	assert.Equal(t, []common.Address{junk}, ds.Unpriced)

	a := ds.Rows[0]
	assert.Equal(t, poolA, a.Pool.Address)
	assert.True(t, dec("100").Equal(a.Votes), "the first epoch of a pool wins")
	assert.True(t, dec("2").Equal(a.Reserve0))
	assert.True(t, dec("4000").Equal(a.Reserve0USD))
	assert.True(t, dec("4000").Equal(a.Reserve1USD))
	assert.True(t, dec("8000").Equal(a.TVLUSD))
	assert.True(t, dec("20").Equal(a.Token0FeesUSD))
	assert.True(t, dec("5").Equal(a.IncentivesUSD), "the unpriced leg adds nothing")
	assert.True(t, dec("2.5").Equal(a.FeesUSD))
	assert.True(t, dec("7.5").Equal(a.TotalIncentivesUSD))

	require.Len(t, a.Incentives, 2)
	assert.Equal(t, "VELO", a.Incentives[0].Symbol)
	require.NotNil(t, a.Incentives[0].ValueUSD)
	assert.True(t, dec("5").Equal(*a.Incentives[0].ValueUSD))
	assert.True(t, dec("100").Equal(a.Incentives[1].Amount))
	assert.Nil(t, a.Incentives[1].PriceUSD)
	assert.Nil(t, a.Incentives[1].ValueUSD)

	b := ds.Rows[1]
	assert.Equal(t, "CL200-VELO/USDC", b.Symbol)
	assert.True(t, dec("1000").Equal(b.TVLUSD))
	assert.True(t, dec("2").Equal(b.IncentivesUSD))

	assert.True(t, dec("9000").Equal(ds.TVLUSD))
	assert.True(t, dec("7").Equal(ds.IncentivesUSD))
	assert.True(t, dec("2.5").Equal(ds.FeesUSD))
	assert.True(t, dec("9.5").Equal(ds.TotalIncentivesUSD))
}

func TestCombineLeftJoin(t *testing.T) {
	ds := newTestAggregator(t).Combine(context.Background(), testPools(), testEpochs(), false)

	require.Len(t, ds.Rows, 3)
	c := ds.Rows[2]
	assert.False(t, c.HasEpoch)
	assert.True(t, dec("2000").Equal(c.TVLUSD), "the unpriced reserve is worth zero")
	assert.True(t, c.TotalIncentivesUSD.IsZero())
	assert.Empty(t, c.Incentives)
}

func TestCombineZeroOnUnknownPrice(t *testing.T) {
	resolver, err := pricing.NewResolver(pricing.ResolverConfig{Sources: []pricing.Source{mapSource{}}})
	require.NoError(t, err)
	agg, err := New(Config{Prices: resolver, Tokens: normalizer.NewTokenIndex(nil, nil)})
	require.NoError(t, err)

	pools := []normalizer.Pool{{Address: poolA, Token0: junk, Reserve0: units(5, 18), Token1: velo, Reserve1: units(7, 18)}}
	epochs := []normalizer.Epoch{{Pool: poolA, Incentives: []normalizer.TokenAmount{{Token: junk, Amount: units(1, 18)}}}}

	ds := agg.Combine(context.Background(), pools, epochs, true)
	require.Len(t, ds.Rows, 1)
	r := ds.Rows[0]
	assert.True(t, r.TVLUSD.IsZero())
	assert.True(t, r.IncentivesUSD.IsZero())
	assert.True(t, dec("5").Equal(r.Reserve0), "amounts are still scaled")
	assert.ElementsMatch(t, []common.Address{junk, velo}, ds.Unpriced)
}

func TestRecordColumnContract(t *testing.T) {
	ds := newTestAggregator(t).Combine(context.Background(), testPools(), testEpochs(), true)
	ds.ChainID = 10
	ds.BlockNumber = 123

	for i := range ds.Rows {
		require.Len(t, ds.Record(i), len(Columns))
		require.Len(t, ds.Values(i), len(Columns))
	}

	rec := ds.Record(0)
	col := func(name string) string {
		for i, c := range Columns {
			if c == name {
				return rec[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	assert.Equal(t, "10", col("chain_id"))
	assert.Equal(t, "123", col("block_number"))
	assert.Equal(t, poolA.Hex(), col("lp"))
	assert.Equal(t, "8000", col("tvl_usd"))
	assert.Equal(t, "7.5", col("total_incentives_usd"))

	var legs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(col("bribe_token_prices")), &legs))
	require.Len(t, legs, 2)
	assert.Nil(t, legs[1]["priceUsd"])
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "Prices")
}
