// Package aggregator joins pools with their latest reward epoch and prices
// every token-denominated quantity in USD.
package aggregator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/big"
	"slices"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/defistate/sugar-client-go/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PriceResolver prices many tokens at once. *pricing.Resolver satisfies it.
type PriceResolver interface {
	ResolveBatch(ctx context.Context, tokens []common.Address) []pricing.BatchResult
}

// TokenInfo supplies token metadata. *normalizer.TokenIndex satisfies it.
type TokenInfo interface {
	Decimals(ctx context.Context, token common.Address) uint8
	Symbol(ctx context.Context, token common.Address) string
}

type Config struct {
	Prices PriceResolver
	Tokens TokenInfo
	Logger Logger
}

func (c *Config) validate() error {
	if c.Prices == nil {
		return errors.New("config: Prices is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	return nil
}

type Aggregator struct {
	prices PriceResolver
	tokens TokenInfo
	logger Logger
}

func New(cfg Config) (*Aggregator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{prices: cfg.Prices, tokens: cfg.Tokens, logger: cfg.Logger}, nil
}

// Combine joins pools with epochs on the pool address and prices the result.
// With innerJoin only pools that have an epoch are kept. Tokens no source
// can price contribute zero and are listed in PricedDataset.Unpriced.
func (a *Aggregator) Combine(ctx context.Context, pools []normalizer.Pool, epochs []normalizer.Epoch, innerJoin bool) *PricedDataset {
	epochs = normalizer.Dedupe(epochs, func(e normalizer.Epoch) common.Address { return e.Pool })
	byPool := make(map[common.Address]normalizer.Epoch, len(epochs))
	for _, e := range epochs {
		byPool[e.Pool] = e
	}

	type joined struct {
		pool  normalizer.Pool
		epoch *normalizer.Epoch
	}
	rows := make([]joined, 0, len(pools))
	for _, p := range pools {
		e, ok := byPool[p.Address]
		if !ok {
			if innerJoin {
				continue
			}
			rows = append(rows, joined{pool: p})
			continue
		}
		rows = append(rows, joined{pool: p, epoch: &e})
	}

	var tokens []common.Address
	for _, r := range rows {
		tokens = append(tokens, r.pool.Token0, r.pool.Token1)
		if r.epoch != nil {
			for _, ta := range r.epoch.Incentives {
				tokens = append(tokens, ta.Token)
			}
			for _, ta := range r.epoch.Fees {
				tokens = append(tokens, ta.Token)
			}
		}
	}
	tokens = distinctTokens(tokens)

	pr := &pricer{
		ctx:      ctx,
		tokens:   a.tokens,
		prices:   pricing.Prices(a.prices.ResolveBatch(ctx, tokens)),
		unpriced: make(map[common.Address]struct{}),
	}

	ds := &PricedDataset{
		TotalPools: len(pools),
		Rows:       make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		row := pr.row(r.pool, r.epoch)
		ds.TVLUSD = ds.TVLUSD.Add(row.TVLUSD)
		ds.IncentivesUSD = ds.IncentivesUSD.Add(row.IncentivesUSD)
		ds.FeesUSD = ds.FeesUSD.Add(row.FeesUSD)
		ds.Rows = append(ds.Rows, row)
	}
	ds.TotalIncentivesUSD = ds.IncentivesUSD.Add(ds.FeesUSD)

	for t := range pr.unpriced {
		ds.Unpriced = append(ds.Unpriced, t)
	}
	slices.SortFunc(ds.Unpriced, func(x, y common.Address) int { return bytes.Compare(x[:], y[:]) })

	a.logger.Debug("Combined pools with rewards",
		"pools", len(pools), "epochs", len(epochs), "rows", len(ds.Rows),
		"tokens", len(tokens), "unpriced", len(ds.Unpriced), "inner_join", innerJoin)
	return ds
}

func distinctTokens(tokens []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(tokens))
	out := make([]common.Address, 0, len(tokens))
	for _, t := range tokens {
		if t == (common.Address{}) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// pricer values amounts for one Combine call.
type pricer struct {
	ctx      context.Context
	tokens   TokenInfo
	prices   map[common.Address]pricing.TokenPrice
	unpriced map[common.Address]struct{}
}

// price returns the token's USD price, or false after recording the token as
// unpriced.
func (p *pricer) price(token common.Address) (decimal.Decimal, bool) {
	if token == (common.Address{}) {
		return decimal.Decimal{}, false
	}
	tp, ok := p.prices[token]
	if !ok {
		p.unpriced[token] = struct{}{}
		return decimal.Decimal{}, false
	}
	return tp.Price, true
}

func (p *pricer) scale(token common.Address, raw *big.Int) decimal.Decimal {
	return normalizer.Scale(raw, p.tokens.Decimals(p.ctx, token))
}

// value scales raw by the token's decimals and then prices it. Unpriced
// amounts are worth zero.
func (p *pricer) value(token common.Address, raw *big.Int) (amount, usd decimal.Decimal) {
	amount = p.scale(token, raw)
	if price, ok := p.price(token); ok {
		usd = amount.Mul(price)
	}
	return amount, usd
}

func (p *pricer) rewards(list []normalizer.TokenAmount) ([]RewardValue, decimal.Decimal) {
	var total decimal.Decimal
	out := make([]RewardValue, 0, len(list))
	for _, ta := range list {
		if ta.Token == (common.Address{}) {
			continue
		}
		rv := RewardValue{
			Token:  ta.Token,
			Symbol: p.tokens.Symbol(p.ctx, ta.Token),
			Amount: p.scale(ta.Token, ta.Amount),
		}
		if price, ok := p.price(ta.Token); ok {
			usd := rv.Amount.Mul(price)
			rv.PriceUSD = &price
			rv.ValueUSD = &usd
			total = total.Add(usd)
		}
		out = append(out, rv)
	}
	return out, total
}

func (p *pricer) row(pool normalizer.Pool, epoch *normalizer.Epoch) Row {
	r := Row{Pool: pool, Symbol: normalizer.PoolSymbol(p.ctx, pool, p.tokens)}

	r.Token0USD, _ = p.price(pool.Token0)
	r.Token1USD, _ = p.price(pool.Token1)
	r.Reserve0, r.Reserve0USD = p.value(pool.Token0, pool.Reserve0)
	r.Reserve1, r.Reserve1USD = p.value(pool.Token1, pool.Reserve1)
	r.TVLUSD = r.Reserve0USD.Add(r.Reserve1USD)
	r.Token0Fees, r.Token0FeesUSD = p.value(pool.Token0, pool.Token0Fees)
	r.Token1Fees, r.Token1FeesUSD = p.value(pool.Token1, pool.Token1Fees)

	if epoch != nil {
		r.HasEpoch = true
		r.EpochTimestamp = epoch.Timestamp
		r.Votes = epoch.Votes
		r.Emissions = epoch.Emissions
		r.Incentives, r.IncentivesUSD = p.rewards(epoch.Incentives)
		r.Fees, r.FeesUSD = p.rewards(epoch.Fees)
	}
	r.TotalIncentivesUSD = r.IncentivesUSD.Add(r.FeesUSD)
	return r
}
