package normalizer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed for any token whose decimals are unknown.
const DefaultDecimals uint8 = 18

var one = decimal.NewFromInt(1)

// Scale converts a raw on-chain integer into whole units by dividing by
// 10^decimals. The result is exact.
func Scale(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ScaleUp is the inverse of Scale. Fractional digits below 10^-decimals are
// truncated.
func ScaleUp(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

// Dedupe keeps the first record seen for every key and drops the rest,
// preserving order.
func Dedupe[T any, K comparable](records []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(records))
	out := make([]T, 0, len(records))
	for _, rec := range records {
		k := key(rec)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// Allocation is a raw amount assigned to a target, e.g. votes cast for a pool.
type Allocation struct {
	Target common.Address
	Amount *big.Int
}

// Weight is the share of a total held by one target, in [0, 1].
type Weight struct {
	Target common.Address  `json:"target"`
	Ratio  decimal.Decimal `json:"ratio"`
}

// DeriveWeight divides every allocation by total after scaling both.
// Ratios are clamped to [0, 1] since on-chain amounts are rounded
// independently. A zero total yields no weights.
func DeriveWeight(allocs []Allocation, total *big.Int, decimals uint8) []Weight {
	weights := make([]Weight, 0, len(allocs))
	if total == nil || total.Sign() <= 0 {
		return weights
	}

	denom := Scale(total, decimals)
	for _, a := range allocs {
		ratio := Scale(a.Amount, decimals).Div(denom)
		weights = append(weights, Weight{Target: a.Target, Ratio: clamp(ratio)})
	}
	return weights
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

func allocations(pairs []TokenAmount) []Allocation {
	out := make([]Allocation, len(pairs))
	for i, p := range pairs {
		out[i] = Allocation{Target: p.Token, Amount: p.Amount}
	}
	return out
}
