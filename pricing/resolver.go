package pricing

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/defistate/sugar-client-go/cache"
	"github.com/ethereum/go-ethereum/common"
)

const DefaultPriceTTL = time.Minute

// ResolverConfig configures a Resolver. Sources are tried in order.
type ResolverConfig struct {
	Sources []Source
	// Store defaults to a MemoryStore with TTL.
	Store Store
	TTL   time.Duration
	Clock func() time.Time

	Logger  Logger
	Metrics *Metrics
}

func (c *ResolverConfig) validate() error {
	if len(c.Sources) == 0 {
		return errors.New("config: at least one Source is required")
	}
	for _, s := range c.Sources {
		if s == nil {
			return errors.New("config: Sources cannot contain nil")
		}
	}
	return nil
}

// Resolver returns the first price any of its sources can give and caches
// it.
type Resolver struct {
	sources []Source
	store   Store
	now     func() time.Time
	logger  Logger
	metrics *Metrics
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultPriceTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.TTL, cache.WithClock(cfg.Clock))
	}
	return &Resolver{
		sources: slices.Clone(cfg.Sources),
		store:   cfg.Store,
		now:     cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Resolve returns the token's price, or false if no source has one.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (TokenPrice, bool) {
	p, _, ok := r.resolve(ctx, token)
	return p, ok
}

// ResolveStrict is Resolve that reports a missing price as a
// *PriceUnavailableError.
func (r *Resolver) ResolveStrict(ctx context.Context, token common.Address) (TokenPrice, error) {
	p, tried, ok := r.resolve(ctx, token)
	if !ok {
		return TokenPrice{}, &PriceUnavailableError{Token: token, SourcesTried: tried}
	}
	return p, nil
}

func (r *Resolver) resolve(ctx context.Context, token common.Address) (TokenPrice, []SourceName, bool) {
	if p, ok := r.store.Get(ctx, token); ok {
		r.metrics.cacheHit()
		return p, nil, true
	}

	tried := make([]SourceName, 0, len(r.sources))
	for _, src := range r.sources {
		tried = append(tried, src.Name())
		price, ok := src.Resolve(ctx, token)
		if !ok {
			continue
		}
		p := TokenPrice{Token: token, Price: price, Source: src.Name(), ResolvedAt: r.now()}
		r.store.Set(ctx, p)
		r.metrics.resolved(string(src.Name()))
		return p, tried, true
	}

	r.metrics.resolved("none")
	r.logger.Debug("No source could price token", "token", token.Hex(), "tried", tried)
	return TokenPrice{}, tried, false
}

// BatchResult is the outcome for one token of ResolveBatch.
type BatchResult struct {
	Token common.Address
	Price TokenPrice
	OK    bool
}

// ResolveBatch warms every prefetching source with the tokens that are not
// stored yet, then resolves each token. Results follow the input order,
// duplicates included.
func (r *Resolver) ResolveBatch(ctx context.Context, tokens []common.Address) []BatchResult {
	missing := uniqueTokens(tokens, func(t common.Address) bool {
		_, ok := r.store.Get(ctx, t)
		return ok
	})
	if len(missing) > 0 {
		for _, src := range r.sources {
			if p, ok := src.(Prefetcher); ok {
				p.Prefetch(ctx, missing)
			}
		}
	}

	results := make([]BatchResult, len(tokens))
	for i, t := range tokens {
		p, ok := r.Resolve(ctx, t)
		results[i] = BatchResult{Token: t, Price: p, OK: ok}
	}
	return results
}

// Prices indexes the priced results by token.
func Prices(results []BatchResult) map[common.Address]TokenPrice {
	out := make(map[common.Address]TokenPrice, len(results))
	for _, res := range results {
		if res.OK {
			out[res.Token] = res.Price
		}
	}
	return out
}

// Invalidate drops the stored price of token.
func (r *Resolver) Invalidate(ctx context.Context, token common.Address) {
	r.store.Delete(ctx, token)
}

// Clear drops every stored price. Source caches are left alone; see Reset.
func (r *Resolver) Clear(ctx context.Context) {
	r.store.Clear(ctx)
}

// Reset clears the store and the caches of every source that keeps one.
func (r *Resolver) Reset(ctx context.Context) {
	r.Clear(ctx)
	for _, src := range r.sources {
		if rs, ok := src.(Resetter); ok {
			rs.Reset()
		}
	}
}
