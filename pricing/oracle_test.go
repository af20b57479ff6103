package pricing

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85")
	usdt = common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58")
	wbtc = common.HexToAddress("0x68f180fcCe6836688e9084f035309E29Bf0A2095")
	velo = common.HexToAddress("0x9560e827aF36c94D2Ac33a39bCE1Fe78631088Db")
)

// exp10 returns m * 10^e.
func exp10(m int64, e int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(m), new(big.Int).Exp(big.NewInt(10), big.NewInt(e), nil))
}

type fakeOracle struct {
	mu      sync.Mutex
	rates   map[common.Address]*big.Int
	failOn  map[common.Address]bool
	batches [][]common.Address
}

func (o *fakeOracle) ManyRatesToEth(_ context.Context, tokens []common.Address, _ bool, _ []common.Address, _ uint64) ([]*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, append([]common.Address(nil), tokens...))

	out := make([]*big.Int, len(tokens))
	for i, t := range tokens {
		if o.failOn[t] {
			return nil, errors.New("execution reverted")
		}
		if r, ok := o.rates[t]; ok {
			out[i] = r
		} else {
			out[i] = big.NewInt(0)
		}
	}
	return out, nil
}

func (o *fakeOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.batches)
}

type mapDecimals map[common.Address]uint8

func (m mapDecimals) Decimals(_ context.Context, token common.Address) uint8 {
	if d, ok := m[token]; ok {
		return d
	}
	return 18
}

func newTestOracleSource(t *testing.T, oracle *fakeOracle, clock *fakeClock) *OracleSource {
	t.Helper()
	src, err := NewOracleSource(OracleConfig{
		Oracle:          oracle,
		Decimals:        mapDecimals{usdc: 6, usdt: 6, wbtc: 8},
		StableConnector: usdc,
		Stables:         []common.Address{usdc, usdt},
		Clock:           clock.Now,
	})
	require.NoError(t, err)
	return src
}

func TestOracleSourceCorrection(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{rates: map[common.Address]*big.Int{
		// one usdc is 1/2500 of the native asset
		usdc: exp10(4, 26),
		wbtc: exp10(25, 28),
		velo: exp10(4, 14),
	}}
	src := newTestOracleSource(t, oracle, newFakeClock())

	ref, ok := src.ReferenceUSD(ctx)
	require.True(t, ok)
	assert.True(t, mustDec("2500").Equal(ref), "got %s", ref)

	p, ok := src.Resolve(ctx, wbtc)
	require.True(t, ok)
	assert.True(t, mustDec("62500").Equal(p), "got %s", p)

	p, ok = src.Resolve(ctx, velo)
	require.True(t, ok)
	assert.True(t, mustDec("1").Equal(p), "got %s", p)
}

func TestOracleSourceStables(t *testing.T) {
	oracle := &fakeOracle{}
	src := newTestOracleSource(t, oracle, newFakeClock())

	p, ok := src.Resolve(context.Background(), usdt)
	require.True(t, ok)
	assert.True(t, one.Equal(p))
	assert.Zero(t, oracle.calls(), "stables are never queried")
}

func TestOracleSourceBatching(t *testing.T) {
	oracle := &fakeOracle{rates: map[common.Address]*big.Int{}}
	src := newTestOracleSource(t, oracle, newFakeClock())

	tokens := make([]common.Address, 0, 42)
	for i := 1; i <= 40; i++ {
		tokens = append(tokens, common.BigToAddress(big.NewInt(int64(i))))
	}
	tokens = append(tokens, usdc, tokens[0])

	src.Prefetch(context.Background(), tokens)
	require.Len(t, oracle.batches, 3)
	assert.Len(t, oracle.batches[0], 15)
	assert.Len(t, oracle.batches[1], 15)
	assert.Len(t, oracle.batches[2], 10)

	src.Prefetch(context.Background(), tokens)
	assert.Len(t, oracle.batches, 3, "cached tokens are not fetched again")
}

func TestOracleSourceUnknown(t *testing.T) {
	ctx := context.Background()
	bad := common.HexToAddress("0x00000000000000000000000000000000000000bd")
	oracle := &fakeOracle{
		rates:  map[common.Address]*big.Int{usdc: exp10(4, 26), wbtc: exp10(25, 28)},
		failOn: map[common.Address]bool{bad: true},
	}
	clock := newFakeClock()
	src := newTestOracleSource(t, oracle, clock)

	t.Run("failed batch is cached as unknown", func(t *testing.T) {
		src.Prefetch(ctx, []common.Address{wbtc, bad})
		require.Equal(t, 1, oracle.calls())

		_, ok := src.Resolve(ctx, wbtc)
		assert.False(t, ok)
		_, ok = src.Resolve(ctx, bad)
		assert.False(t, ok)
		assert.Equal(t, 1, oracle.calls(), "unknown entries are not refetched within the ttl")
	})

	t.Run("unknown expires with the ttl", func(t *testing.T) {
		clock.Advance(DefaultRateTTL)
		p, ok := src.Resolve(ctx, wbtc)
		require.True(t, ok)
		assert.True(t, mustDec("62500").Equal(p))
	})

	t.Run("zero rate is unknown", func(t *testing.T) {
		_, ok := src.Resolve(ctx, velo)
		assert.False(t, ok)
	})
}

func TestOracleSourceReference(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{rates: map[common.Address]*big.Int{}}
	clock := newFakeClock()
	src := newTestOracleSource(t, oracle, clock)

	_, ok := src.ReferenceUSD(ctx)
	assert.False(t, ok)
	require.Equal(t, 1, oracle.calls())

	oracle.mu.Lock()
	oracle.rates[usdc] = exp10(4, 26)
	oracle.mu.Unlock()

	_, ok = src.ReferenceUSD(ctx)
	assert.False(t, ok, "a failed reference lookup is remembered")
	assert.Equal(t, 1, oracle.calls())

	clock.Advance(DefaultFailureTTL)
	_, ok = src.ReferenceUSD(ctx)
	require.True(t, ok)
	calls := oracle.calls()
	assert.Equal(t, 2, calls)

	clock.Advance(30 * time.Second)
	_, ok = src.ReferenceUSD(ctx)
	require.True(t, ok)
	assert.Equal(t, calls, oracle.calls())

	clock.Advance(30 * time.Second)
	src.ReferenceUSD(ctx)
	assert.Equal(t, calls+1, oracle.calls())

	src.Reset()
	src.ReferenceUSD(ctx)
	assert.Equal(t, calls+2, oracle.calls())
}

func TestOracleSourceReferenceFailure(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{
		rates:  map[common.Address]*big.Int{},
		failOn: map[common.Address]bool{usdc: true},
	}
	tokens := make([]common.Address, 20)
	for i := range tokens {
		tokens[i] = common.BytesToAddress([]byte{0xaa, byte(i + 1)})
		oracle.rates[tokens[i]] = exp10(1, 18)
	}
	src := newTestOracleSource(t, oracle, newFakeClock())

	src.Prefetch(ctx, tokens)
	require.Equal(t, 2, oracle.calls(), "20 tokens in batches of 15")

	for _, token := range tokens {
		_, ok := src.Resolve(ctx, token)
		assert.False(t, ok, "no USD price without a reference")
	}
	assert.Equal(t, 3, oracle.calls(), "the reverting stable connector is asked once")
}

func TestNewOracleSourceValidation(t *testing.T) {
	_, err := NewOracleSource(OracleConfig{})
	assert.Error(t, err)

	_, err = NewOracleSource(OracleConfig{Oracle: &fakeOracle{}, Decimals: mapDecimals{}})
	assert.ErrorContains(t, err, "StableConnector")
}
