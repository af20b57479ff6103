// Package pricing resolves USD prices for tokens through a priority-ordered
// list of sources behind one cached resolver.
package pricing

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SourceName tags where a price came from.
type SourceName string

const (
	SourceOracle    SourceName = "oracle"
	SourceDefiLlama SourceName = "defillama"
	SourceCoinGecko SourceName = "coingecko"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Source resolves the USD price of a single token. A source never fails:
// anything it cannot answer is reported as absent.
type Source interface {
	Name() SourceName
	Resolve(ctx context.Context, token common.Address) (decimal.Decimal, bool)
}

// Prefetcher is implemented by sources that can warm their cache for many
// tokens in few round trips.
type Prefetcher interface {
	Prefetch(ctx context.Context, tokens []common.Address)
}

// Resetter is implemented by sources that keep a cache of their own.
type Resetter interface {
	Reset()
}

// DecimalsLookup returns the decimal count of a token. The normalizer's
// token index satisfies it.
type DecimalsLookup interface {
	Decimals(ctx context.Context, token common.Address) uint8
}

// TokenPrice is a resolved price.
type TokenPrice struct {
	Token      common.Address  `json:"token"`
	Price      decimal.Decimal `json:"price"`
	Source     SourceName      `json:"source"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// priceEntry is what a source caches. known is false for tokens the source
// already failed to price.
type priceEntry struct {
	price decimal.Decimal
	known bool
}

func uniqueTokens(tokens []common.Address, skip func(common.Address) bool) []common.Address {
	seen := make(map[common.Address]struct{}, len(tokens))
	out := make([]common.Address, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if skip != nil && skip(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
