package normalizer

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScale(t *testing.T) {
	t.Run("divides by ten to the decimals", func(t *testing.T) {
		got := Scale(big.NewInt(1_500_000), 6)
		assert.True(t, decimal.RequireFromString("1.5").Equal(got), "got %s", got)
	})

	t.Run("nil is zero", func(t *testing.T) {
		assert.True(t, Scale(nil, 18).IsZero())
	})

	t.Run("round trip for representable integers", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		values := []decimal.Decimal{
			decimal.Zero,
			decimal.NewFromInt(1),
			decimal.NewFromInt(-42),
			decimal.RequireFromString("1000000000000000000000000"),
		}
		for i := 0; i < 50; i++ {
			values = append(values, decimal.NewFromInt(rng.Int63()))
		}

		for _, d := range []uint8{0, 6, 8, 18} {
			for _, x := range values {
				back := Scale(ScaleUp(x, d), d)
				assert.True(t, x.Equal(back), "decimals=%d x=%s back=%s", d, x, back)
			}
		}
	})

	t.Run("scale up truncates sub-unit digits", func(t *testing.T) {
		got := ScaleUp(decimal.RequireFromString("1.23456789"), 6)
		assert.Equal(t, big.NewInt(1_234_567), got)
	})
}

func TestDedupe(t *testing.T) {
	type rec struct {
		key string
		val int
	}
	in := []rec{{"a", 1}, {"b", 2}, {"a", 3}, {"c", 4}, {"b", 5}}

	out := Dedupe(in, func(r rec) string { return r.key })

	require.Len(t, out, 3)
	assert.Equal(t, []rec{{"a", 1}, {"b", 2}, {"c", 4}}, out, "first occurrence wins and order is kept")
	assert.Empty(t, Dedupe([]rec(nil), func(r rec) string { return r.key }))
}

func TestDeriveWeight(t *testing.T) {
	poolA := common.HexToAddress("0x000000000000000000000000000000000000000a")
	poolB := common.HexToAddress("0x000000000000000000000000000000000000000b")
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	t.Run("ratios of the total", func(t *testing.T) {
		total := new(big.Int).Mul(big.NewInt(4), e18)
		weights := DeriveWeight([]Allocation{
			{Target: poolA, Amount: new(big.Int).Mul(big.NewInt(1), e18)},
			{Target: poolB, Amount: new(big.Int).Mul(big.NewInt(3), e18)},
		}, total, 18)

		require.Len(t, weights, 2)
		assert.Equal(t, poolA, weights[0].Target)
		assert.True(t, decimal.RequireFromString("0.25").Equal(weights[0].Ratio))
		assert.True(t, decimal.RequireFromString("0.75").Equal(weights[1].Ratio))
	})

	t.Run("zero total yields an empty list", func(t *testing.T) {
		weights := DeriveWeight([]Allocation{{Target: poolA, Amount: big.NewInt(5)}}, big.NewInt(0), 18)
		assert.NotNil(t, weights)
		assert.Empty(t, weights)

		assert.Empty(t, DeriveWeight([]Allocation{{Target: poolA, Amount: big.NewInt(5)}}, nil, 18))
	})

	t.Run("ratios stay within bounds under rounding overshoot", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		for i := 0; i < 500; i++ {
			total := new(big.Int).Rand(rng, e18)
			total.Add(total, big.NewInt(1))
			// up to 2% above the total
			limit := new(big.Int).Mul(total, big.NewInt(102))
			limit.Div(limit, big.NewInt(100))
			limit.Add(limit, big.NewInt(1))
			amount := new(big.Int).Rand(rng, limit)

			for _, d := range []uint8{0, 6, 18} {
				weights := DeriveWeight([]Allocation{{Target: poolA, Amount: amount}}, total, d)
				require.Len(t, weights, 1)
				r := weights[0].Ratio
				assert.False(t, r.IsNegative(), "ratio %s below 0", r)
				assert.True(t, r.LessThanOrEqual(decimal.NewFromInt(1)), "ratio %s above 1", r)
			}
		}
	})

	t.Run("overshoot clamps to one", func(t *testing.T) {
		weights := DeriveWeight([]Allocation{{Target: poolA, Amount: big.NewInt(101)}}, big.NewInt(100), 0)
		require.Len(t, weights, 1)
		assert.True(t, weights[0].Ratio.Equal(decimal.NewFromInt(1)))
	})
}
