package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/defistate/sugar-client-go/cache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	DefaultOracleBatchSize = 15
	DefaultOracleThreshold = 10
	DefaultRateTTL         = time.Minute
	DefaultReferenceTTL    = time.Minute
	// DefaultFailureTTL is how long a failed lookup is remembered before
	// the source asks again.
	DefaultFailureTTL = 15 * time.Second
)

// rawRateExp turns a raw rate into a per-whole-token rate: the oracle
// returns rates as 1e18 fixed point assuming 18 token decimals, so a token
// with D decimals needs raw * 10^(D-18) / 1e18.
const rawRateExp = -36

var one = decimal.NewFromInt(1)

// RateOracle returns rates to the native asset for many tokens in one call.
// *contracts.Oracle satisfies it.
type RateOracle interface {
	ManyRatesToEth(ctx context.Context, tokens []common.Address, useWrappers bool, connectors []common.Address, threshold uint64) ([]*big.Int, error)
}

// OracleConfig configures an OracleSource.
type OracleConfig struct {
	Oracle   RateOracle
	Decimals DecimalsLookup

	Connectors []common.Address
	// StableConnector anchors the native asset's USD value.
	StableConnector common.Address
	// Stables are priced at exactly 1 without a query.
	Stables []common.Address

	BatchSize   int
	Threshold   uint64
	UseWrappers bool

	RateTTL      time.Duration
	ReferenceTTL time.Duration
	// FailureTTL applies to a failed reference lookup.
	FailureTTL time.Duration
	Clock      func() time.Time

	Logger  Logger
	Metrics *Metrics
}

func (c *OracleConfig) validate() error {
	if c.Oracle == nil {
		return errors.New("config: Oracle is required")
	}
	if c.Decimals == nil {
		return errors.New("config: Decimals is required")
	}
	if c.StableConnector == (common.Address{}) {
		return errors.New("config: StableConnector is required")
	}
	return nil
}

// OracleSource prices tokens from on-chain spot rates.
type OracleSource struct {
	oracle      RateOracle
	decimals    DecimalsLookup
	connectors  []common.Address
	stable      common.Address
	stables     map[common.Address]struct{}
	batchSize   int
	threshold   uint64
	useWrappers bool
	logger      Logger
	metrics     *Metrics

	// rates holds rates to the native asset per whole token.
	rates *cache.TTL[common.Address, priceEntry]
	// reference holds the USD value of one unit of the native asset.
	reference        *cache.TTL[common.Address, decimal.Decimal]
	referenceFailure *cache.TTL[common.Address, struct{}]
}

func NewOracleSource(cfg OracleConfig) (*OracleSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOracleBatchSize
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultOracleThreshold
	}
	if cfg.RateTTL == 0 {
		cfg.RateTTL = DefaultRateTTL
	}
	if cfg.ReferenceTTL == 0 {
		cfg.ReferenceTTL = DefaultReferenceTTL
	}
	if cfg.FailureTTL == 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	var opts []cache.Option
	if cfg.Clock != nil {
		opts = append(opts, cache.WithClock(cfg.Clock))
	}

	stables := make(map[common.Address]struct{}, len(cfg.Stables))
	for _, s := range cfg.Stables {
		stables[s] = struct{}{}
	}

	return &OracleSource{
		oracle:      cfg.Oracle,
		decimals:    cfg.Decimals,
		connectors:  slices.Clone(cfg.Connectors),
		stable:      cfg.StableConnector,
		stables:     stables,
		batchSize:   cfg.BatchSize,
		threshold:   cfg.Threshold,
		useWrappers: cfg.UseWrappers,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		rates:       cache.New[common.Address, priceEntry](cfg.RateTTL, opts...),
		reference:   cache.New[common.Address, decimal.Decimal](cfg.ReferenceTTL, opts...),

		referenceFailure: cache.New[common.Address, struct{}](cfg.FailureTTL, opts...),
	}, nil
}

func (s *OracleSource) Name() SourceName {
	return SourceOracle
}

func (s *OracleSource) isStable(token common.Address) bool {
	_, ok := s.stables[token]
	return ok
}

// Prefetch fetches rates for every token not cached yet, batchSize tokens
// per call. When a batch fails all of its tokens are cached as unknown so
// one bad token costs one batch per TTL window.
func (s *OracleSource) Prefetch(ctx context.Context, tokens []common.Address) {
	pending := uniqueTokens(tokens, func(t common.Address) bool {
		if t == (common.Address{}) || s.isStable(t) {
			return true
		}
		_, cached := s.rates.Get(t)
		return cached
	})
	if len(pending) == 0 {
		return
	}
	defer s.metrics.observe(SourceOracle, time.Now())

	for _, batch := range chunk(pending, s.batchSize) {
		rates, err := s.oracle.ManyRatesToEth(ctx, batch, s.useWrappers, s.connectors, s.threshold)
		if err == nil && len(rates) != len(batch) {
			err = fmt.Errorf("got %d rates for %d tokens", len(rates), len(batch))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Oracle batch failed, caching tokens as unknown", "tokens", len(batch), "first", batch[0].Hex(), "error", err)
			for _, t := range batch {
				s.rates.Set(t, priceEntry{})
			}
			continue
		}

		for i, t := range batch {
			s.rates.Set(t, s.entry(ctx, t, rates[i]))
		}
	}
}

func (s *OracleSource) entry(ctx context.Context, token common.Address, raw *big.Int) priceEntry {
	if raw == nil || raw.Sign() <= 0 {
		return priceEntry{}
	}
	return priceEntry{price: s.correct(ctx, token, raw), known: true}
}

// correct applies the token's decimals to a raw oracle rate.
func (s *OracleSource) correct(ctx context.Context, token common.Address, raw *big.Int) decimal.Decimal {
	d := s.decimals.Decimals(ctx, token)
	return decimal.NewFromBigInt(raw, int32(d)+rawRateExp)
}

// ReferenceUSD returns the USD value of one native unit, derived from the
// stable connector's rate. A failed lookup is not repeated for FailureTTL.
func (s *OracleSource) ReferenceUSD(ctx context.Context) (decimal.Decimal, bool) {
	if v, ok := s.reference.Get(s.stable); ok {
		return v, true
	}
	if _, failed := s.referenceFailure.Get(s.stable); failed {
		return decimal.Decimal{}, false
	}

	defer s.metrics.observe(SourceOracle, time.Now())
	rates, err := s.oracle.ManyRatesToEth(ctx, []common.Address{s.stable}, s.useWrappers, s.connectors, s.threshold)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Failed to fetch reference rate", "stable", s.stable.Hex(), "error", err)
			s.referenceFailure.Set(s.stable, struct{}{})
		}
		return decimal.Decimal{}, false
	}
	if len(rates) != 1 || rates[0] == nil || rates[0].Sign() <= 0 {
		s.logger.Warn("Stable connector has no rate", "stable", s.stable.Hex())
		s.referenceFailure.Set(s.stable, struct{}{})
		return decimal.Decimal{}, false
	}

	usd := one.Div(s.correct(ctx, s.stable, rates[0]))
	s.reference.Set(s.stable, usd)
	return usd, true
}

// Resolve returns the token's USD price, fetching its rate on a cache miss.
func (s *OracleSource) Resolve(ctx context.Context, token common.Address) (decimal.Decimal, bool) {
	if s.isStable(token) {
		return one, true
	}

	e, ok := s.rates.Get(token)
	if !ok {
		s.Prefetch(ctx, []common.Address{token})
		e, ok = s.rates.Get(token)
	}
	if !ok || !e.known {
		return decimal.Decimal{}, false
	}

	usd, ok := s.ReferenceUSD(ctx)
	if !ok {
		return decimal.Decimal{}, false
	}
	return e.price.Mul(usd), true
}

// Reset drops cached rates and the reference value.
func (s *OracleSource) Reset() {
	s.rates.Clear()
	s.reference.Clear()
	s.referenceFailure.Clear()
}
