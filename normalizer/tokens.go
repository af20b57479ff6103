package normalizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsFetcher reads a token's decimals from chain.
type DecimalsFetcher interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// SymbolFetcher reads a token's symbol from chain.
type SymbolFetcher interface {
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// TokenIndex provides indexed access to the token listing of one chain.
// Tokens missing from the listing fall back to the fetcher, and then to
// DefaultDecimals and an empty symbol. Fallback results are remembered
// across Update calls.
type TokenIndex struct {
	mu        sync.RWMutex
	byAddress map[common.Address]Token
	all       []Token

	fetcher        DecimalsFetcher
	fetched        map[common.Address]uint8
	symbolFetcher  SymbolFetcher
	fetchedSymbols map[common.Address]string
}

// NewTokenIndex creates an index over tokens. fetcher may be nil. When it
// also implements SymbolFetcher, symbols of unlisted tokens are read from
// chain too.
func NewTokenIndex(tokens []Token, fetcher DecimalsFetcher) *TokenIndex {
	ti := &TokenIndex{
		fetcher:        fetcher,
		fetched:        make(map[common.Address]uint8),
		fetchedSymbols: make(map[common.Address]string),
	}
	if sf, ok := fetcher.(SymbolFetcher); ok {
		ti.symbolFetcher = sf
	}
	ti.Update(tokens)
	return ti
}

// Update replaces the indexed listing, e.g. after a new sweep.
func (ti *TokenIndex) Update(tokens []Token) {
	byAddress := make(map[common.Address]Token, len(tokens))
	for _, t := range tokens {
		if _, ok := byAddress[t.Address]; !ok {
			byAddress[t.Address] = t
		}
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.byAddress = byAddress
	ti.all = tokens
}

// GetByAddress retrieves a token by its contract address.
func (ti *TokenIndex) GetByAddress(address common.Address) (Token, bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	t, ok := ti.byAddress[address]
	return t, ok
}

// All returns a copy of the indexed tokens.
func (ti *TokenIndex) All() []Token {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	allCopy := make([]Token, len(ti.all))
	copy(allCopy, ti.all)
	return allCopy
}

// Len returns the number of distinct indexed tokens.
func (ti *TokenIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.byAddress)
}

// Decimals returns the token's decimals. It never fails: an unknown token
// whose decimals cannot be fetched is assumed to have DefaultDecimals.
func (ti *TokenIndex) Decimals(ctx context.Context, token common.Address) uint8 {
	ti.mu.RLock()
	t, listed := ti.byAddress[token]
	d, fetched := ti.fetched[token]
	ti.mu.RUnlock()

	switch {
	case listed:
		return t.Decimals
	case fetched:
		return d
	case ti.fetcher == nil:
		return DefaultDecimals
	}

	d, err := ti.fetcher.Decimals(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return DefaultDecimals
		}
		d = DefaultDecimals
	}

	ti.mu.Lock()
	ti.fetched[token] = d
	ti.mu.Unlock()
	return d
}

// Symbol returns the token's symbol: the listed one, else the one read from
// chain. It is "" when neither is known.
func (ti *TokenIndex) Symbol(ctx context.Context, token common.Address) string {
	ti.mu.RLock()
	t, listed := ti.byAddress[token]
	s, fetched := ti.fetchedSymbols[token]
	ti.mu.RUnlock()

	switch {
	case listed:
		return t.Symbol
	case fetched:
		return s
	case ti.symbolFetcher == nil:
		return ""
	}

	s, err := ti.symbolFetcher.Symbol(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		s = ""
	}

	ti.mu.Lock()
	ti.fetchedSymbols[token] = s
	ti.mu.Unlock()
	return s
}

// SymbolLookup returns the symbol of a token, or "".
type SymbolLookup interface {
	Symbol(ctx context.Context, token common.Address) string
}

// PoolSymbol returns the pool's symbol. Concentrated pools carry no symbol on
// chain, so one is built as CL{tickSpacing}-{symbol0}/{symbol1}.
func PoolSymbol(ctx context.Context, p Pool, symbols SymbolLookup) string {
	if p.Symbol != "" || !p.Concentrated() {
		return p.Symbol
	}
	sym0, sym1 := "Unknown", "Unknown"
	if symbols != nil {
		if s := symbols.Symbol(ctx, p.Token0); s != "" {
			sym0 = s
		}
		if s := symbols.Symbol(ctx, p.Token1); s != "" {
			sym1 = s
		}
	}
	return fmt.Sprintf("CL%d-%s/%s", p.Type, sym0, sym1)
}
