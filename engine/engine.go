// Package engine runs the sweep of one chain: it pins a block, drains every
// listing, normalizes the records, prices them and joins pools with rewards.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
	"github.com/defistate/sugar-client-go/contracts"
	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/defistate/sugar-client-go/pagination"
	"github.com/defistate/sugar-client-go/pricing"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ChainClient is the RPC surface a sweep needs. *ethclient.Client
// satisfies it.
type ChainClient interface {
	contracts.Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// PaginationConfig holds the paginator settings shared by every listing.
// Zero values select the paginator defaults.
type PaginationConfig struct {
	PageSize               uint64
	MaxPageSize            uint64
	MaxConsecutiveFailures int
	MaxConsecutiveSkips    int
	RetryDelay             time.Duration
	MaxRetryDelay          time.Duration
	PageDelay              time.Duration
}

// Config configures an Engine.
type Config struct {
	Chain  chains.Config
	Client ChainClient
	Logger chains.Logger

	Pagination PaginationConfig

	// InnerJoin keeps only pools that have a reward epoch.
	InnerJoin bool
	// ListedOnly drops tokens that are not listed.
	ListedOnly bool
	// ActiveRelaysOnly drops inactive relays.
	ActiveRelaysOnly bool
	SkipVe           bool
	SkipRelays       bool

	PriceTTL        time.Duration
	OracleBatchSize int
}

func (c *Config) validate() error {
	if c.Client == nil {
		return errors.New("config: Client is required")
	}
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	return nil
}

// Engine sweeps one chain. Token metadata and price caches live as long as
// the Engine, so consecutive sweeps reuse them.
type Engine struct {
	cfg    Config
	client ChainClient
	chain  chains.Config
	logger chains.Logger

	tokens     *normalizer.TokenIndex
	resolver   *pricing.Resolver
	aggregator *aggregator.Aggregator

	external          []pricing.Source
	store             pricing.Store
	paginationMetrics *pagination.Metrics
	priceMetrics      *pricing.Metrics
}

// Option configures the Engine.
// The interface method is unexported to prevent external modification after New.
type Option interface {
	apply(*Engine)
}

type funcOption func(*Engine)

func (f funcOption) apply(e *Engine) {
	f(e)
}

func newOption(f func(*Engine)) Option {
	return funcOption(f)
}

// WithExternalSources appends price sources that are tried after the
// on-chain oracle, in order.
func WithExternalSources(sources ...pricing.Source) Option {
	return newOption(func(e *Engine) {
		e.external = append(e.external, sources...)
	})
}

// WithPriceStore replaces the in-memory resolver store.
func WithPriceStore(store pricing.Store) Option {
	return newOption(func(e *Engine) {
		e.store = store
	})
}

func WithPaginationMetrics(m *pagination.Metrics) Option {
	return newOption(func(e *Engine) {
		e.paginationMetrics = m
	})
}

func WithPriceMetrics(m *pricing.Metrics) Option {
	return newOption(func(e *Engine) {
		e.priceMetrics = m
	})
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		cfg:    cfg,
		client: cfg.Client,
		chain:  cfg.Chain,
		logger: cfg.Logger,
	}
	for _, opt := range opts {
		opt.apply(e)
	}

	e.tokens = normalizer.NewTokenIndex(nil, contracts.NewERC20(cfg.Client))

	var sources []pricing.Source
	if cfg.Chain.HasOracle() {
		oracle, err := pricing.NewOracleSource(pricing.OracleConfig{
			Oracle:          contracts.NewOracle(cfg.Client, cfg.Chain.PriceOracle),
			Decimals:        e.tokens,
			Connectors:      cfg.Chain.Connectors,
			StableConnector: cfg.Chain.StableConnector,
			Stables:         cfg.Chain.Stables,
			BatchSize:       cfg.OracleBatchSize,
			Logger:          cfg.Logger,
			Metrics:         e.priceMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create oracle source: %w", err)
		}
		sources = append(sources, oracle)
	}
	sources = append(sources, e.external...)
	if len(sources) == 0 {
		return nil, fmt.Errorf("config: chain %s has no oracle and no external price source", cfg.Chain.Name)
	}

	resolver, err := pricing.NewResolver(pricing.ResolverConfig{
		Sources: sources,
		Store:   e.store,
		TTL:     cfg.PriceTTL,
		Logger:  cfg.Logger,
		Metrics: e.priceMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create price resolver: %w", err)
	}
	e.resolver = resolver

	agg, err := aggregator.New(aggregator.Config{Prices: resolver, Tokens: e.tokens, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}
	e.aggregator = agg

	return e, nil
}

// Resolver exposes the engine's price resolver.
func (e *Engine) Resolver() *pricing.Resolver {
	return e.resolver
}

// Tokens exposes the token index filled by the last sweep.
func (e *Engine) Tokens() *normalizer.TokenIndex {
	return e.tokens
}

func paginationOptions[T any](e *Engine, name Listing, mode pagination.Mode) pagination.Options[T] {
	p := e.cfg.Pagination
	return pagination.Options[T]{
		Name:                   e.chain.Name + "/" + string(name),
		Mode:                   mode,
		PageSize:               p.PageSize,
		MaxPageSize:            p.MaxPageSize,
		MaxConsecutiveFailures: p.MaxConsecutiveFailures,
		MaxConsecutiveSkips:    p.MaxConsecutiveSkips,
		RetryDelay:             p.RetryDelay,
		MaxRetryDelay:          p.MaxRetryDelay,
		PageDelay:              p.PageDelay,
		Logger:                 e.logger,
		Metrics:                e.paginationMetrics,
	}
}

type rawListings struct {
	pools  []normalizer.RawRecord
	tokens []normalizer.RawRecord
	epochs []normalizer.RawRecord
	venfts []normalizer.RawRecord
	relays []normalizer.RawRecord
}

// Sweep reads every listing at one block and returns the priced snapshot.
// A failed pool, token or epoch listing fails the sweep; failures of the
// veNFT and relay listings are recorded in Snapshot.Errors.
func (e *Engine) Sweep(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	blockNumber, err := e.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block number: %w", err)
	}
	pin := contracts.AtBlock(new(big.Int).SetUint64(blockNumber))
	snap := &Snapshot{
		ChainID: e.chain.ChainID,
		Block:   BlockSummary{Number: blockNumber, ReceivedAt: start.UnixNano()},
	}
	e.logger.Info("Sweep started", "chain", e.chain.Name, "block", blockNumber)

	lp := contracts.NewLpSugar(e.client, e.chain.LpSugar, pin)
	count, err := lp.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pools: %w", err)
	}

	raw, err := e.drain(ctx, lp, pin, count, snap)
	if err != nil {
		return nil, err
	}

	if err := e.normalize(raw, snap); err != nil {
		return nil, err
	}
	e.tokens.Update(snap.Tokens)

	ds := e.aggregator.Combine(ctx, snap.Pools, snap.Epochs, e.cfg.InnerJoin)
	ds.ChainID = e.chain.ChainID
	ds.ChainName = e.chain.Name
	ds.BlockNumber = blockNumber
	ds.GeneratedAt = time.Now()
	snap.Dataset = ds
	snap.DurationMs = time.Since(start).Milliseconds()

	e.logger.Info("Sweep finished",
		"chain", e.chain.Name,
		"block", blockNumber,
		"pools", len(snap.Pools),
		"tokens", len(snap.Tokens),
		"epochs", len(snap.Epochs),
		"rows", len(ds.Rows),
		"unpriced", len(ds.Unpriced),
		"duration_ms", snap.DurationMs,
	)
	return snap, nil
}

func (e *Engine) drain(ctx context.Context, lp *contracts.LpSugar, pin contracts.Option, count uint64, snap *Snapshot) (*rawListings, error) {
	raw := &rawListings{}
	var mu sync.Mutex
	optional := func(name Listing, err error) {
		e.logger.Warn("Optional listing failed", "chain", e.chain.Name, "listing", name, "error", err)
		mu.Lock()
		defer mu.Unlock()
		if snap.Errors == nil {
			snap.Errors = make(map[Listing]string)
		}
		snap.Errors[name] = err.Error()
	}

	g, gctx := errgroup.WithContext(ctx)

	// pool indices are dense up to count, but the listings built on them
	// may come back short or padded, so every offset sweep is bounded.
	g.Go(func() error {
		opts := paginationOptions[normalizer.RawRecord](e, ListingPools, pagination.ModeOffset)
		opts.Bound = count
		records, err := pagination.Drain(gctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
			return lp.All(ctx, limit, offset, contracts.AllPools)
		}, opts)
		if err != nil {
			return fmt.Errorf("pool listing: %w", err)
		}
		raw.pools = records
		return nil
	})

	g.Go(func() error {
		connectors := e.chain.Connectors
		opts := paginationOptions[normalizer.RawRecord](e, ListingTokens, pagination.ModeOffset)
		opts.Bound = count
		records, err := pagination.Drain(gctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
			page, err := lp.Tokens(ctx, limit, offset, common.Address{}, connectors)
			if err != nil {
				return nil, err
			}
			// a page holding only the connectors has no tokens of its own
			if len(page) <= len(connectors) {
				return nil, nil
			}
			return page, nil
		}, opts)
		if err != nil {
			return fmt.Errorf("token listing: %w", err)
		}
		raw.tokens = records
		return nil
	})

	if e.chain.HasRewards() {
		rewards := contracts.NewRewardsSugar(e.client, e.chain.RewardsSugar, pin)
		g.Go(func() error {
			opts := paginationOptions[normalizer.RawRecord](e, ListingEpochs, pagination.ModeOffset)
			opts.Bound = count
			records, err := pagination.Drain(gctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
				return rewards.EpochsLatest(ctx, limit, offset)
			}, opts)
			if err != nil {
				return fmt.Errorf("epoch listing: %w", err)
			}
			raw.epochs = records
			return nil
		})
	} else if e.cfg.InnerJoin {
		e.logger.Warn("Chain has no rewards helper, inner join will be empty", "chain", e.chain.Name)
	}

	if e.chain.HasVe() && !e.cfg.SkipVe {
		ve := contracts.NewVeSugar(e.client, e.chain.VeSugar, pin)
		g.Go(func() error {
			opts := paginationOptions[normalizer.RawRecord](e, ListingVeNFTs, pagination.ModeMonotonicID)
			opts.StartCursor = 1
			opts.IDFunc = normalizer.RecordID
			records, err := pagination.Drain(gctx, func(ctx context.Context, limit, id uint64) ([]normalizer.RawRecord, error) {
				return ve.All(ctx, limit, id)
			}, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				optional(ListingVeNFTs, err)
				return nil
			}
			raw.venfts = records
			return nil
		})
	}

	if e.chain.HasRelay() && !e.cfg.SkipRelays {
		relay := contracts.NewRelaySugar(e.client, e.chain.RelaySugar, pin)
		g.Go(func() error {
			records, err := relay.All(gctx, common.Address{})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				optional(ListingRelays, err)
				return nil
			}
			raw.relays = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (e *Engine) normalize(raw *rawListings, snap *Snapshot) error {
	var err error
	if snap.Pools, err = normalizer.Pools(raw.pools); err != nil {
		return fmt.Errorf("pool listing: %w", err)
	}
	if snap.Tokens, err = normalizer.Tokens(raw.tokens, e.cfg.ListedOnly); err != nil {
		return fmt.Errorf("token listing: %w", err)
	}
	if snap.Epochs, err = normalizer.Epochs(raw.epochs); err != nil {
		return fmt.Errorf("epoch listing: %w", err)
	}
	if snap.VeNFTs, err = normalizer.VeNFTs(raw.venfts); err != nil {
		return fmt.Errorf("venft listing: %w", err)
	}
	if snap.Relays, err = normalizer.Relays(raw.relays, e.cfg.ActiveRelaysOnly); err != nil {
		return fmt.Errorf("relay listing: %w", err)
	}
	return nil
}

// EpochHistory returns every recorded epoch of pool at the latest block,
// newest first. The listing has no count to bound it, so a short page ends
// it.
func (e *Engine) EpochHistory(ctx context.Context, pool common.Address) ([]normalizer.Epoch, error) {
	if !e.chain.HasRewards() {
		return nil, fmt.Errorf("chain %s has no rewards helper", e.chain.Name)
	}
	blockNumber, err := e.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block number: %w", err)
	}
	rewards := contracts.NewRewardsSugar(e.client, e.chain.RewardsSugar, contracts.AtBlock(new(big.Int).SetUint64(blockNumber)))

	opts := paginationOptions[normalizer.RawRecord](e, ListingEpochs, pagination.ModeOffset)
	opts.Name += ":" + pool.Hex()
	records, err := pagination.Drain(ctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
		return rewards.EpochsByAddress(ctx, limit, offset, pool)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("epoch history: %w", err)
	}

	// history entries share the pool, so they are keyed by timestamp
	epochs := make([]normalizer.Epoch, 0, len(records))
	for _, rec := range records {
		ep, err := normalizer.NewEpoch(rec)
		if err != nil {
			return nil, fmt.Errorf("epoch history: %w", err)
		}
		epochs = append(epochs, ep)
	}
	return normalizer.Dedupe(epochs, func(ep normalizer.Epoch) uint64 { return ep.Timestamp }), nil
}

// pinnedCount pins a block and reads the pool index count behind the
// per-account listings.
func (e *Engine) pinnedCount(ctx context.Context) (BlockSummary, contracts.Option, uint64, error) {
	received := time.Now().UnixNano()
	blockNumber, err := e.client.BlockNumber(ctx)
	if err != nil {
		return BlockSummary{}, nil, 0, fmt.Errorf("failed to fetch block number: %w", err)
	}
	pin := contracts.AtBlock(new(big.Int).SetUint64(blockNumber))
	count, err := contracts.NewLpSugar(e.client, e.chain.LpSugar, pin).Count(ctx)
	if err != nil {
		return BlockSummary{}, nil, 0, fmt.Errorf("failed to count pools: %w", err)
	}
	return BlockSummary{Number: blockNumber, ReceivedAt: received}, pin, count, nil
}

// Positions returns every liquidity position of account at the latest block.
func (e *Engine) Positions(ctx context.Context, account common.Address) (*PositionListing, error) {
	block, pin, count, err := e.pinnedCount(ctx)
	if err != nil {
		return nil, err
	}
	lp := contracts.NewLpSugar(e.client, e.chain.LpSugar, pin)

	opts := paginationOptions[normalizer.RawRecord](e, ListingPositions, pagination.ModeOffset)
	opts.Name += ":" + account.Hex()
	opts.Bound = count
	records, err := pagination.Drain(ctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
		return lp.Positions(ctx, limit, offset, account)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("position listing: %w", err)
	}

	positions, err := normalizer.Positions(records)
	if err != nil {
		return nil, fmt.Errorf("position listing: %w", err)
	}
	e.logger.Debug("Positions listed", "chain", e.chain.Name, "account", account, "block", block.Number, "positions", len(positions))
	return &PositionListing{ChainID: e.chain.ChainID, Block: block, Account: account, Positions: positions}, nil
}

// Rewards returns the rewards venftID can claim at the latest block.
func (e *Engine) Rewards(ctx context.Context, venftID uint64) (*RewardListing, error) {
	if !e.chain.HasRewards() {
		return nil, fmt.Errorf("chain %s has no rewards helper", e.chain.Name)
	}
	block, pin, count, err := e.pinnedCount(ctx)
	if err != nil {
		return nil, err
	}
	rewards := contracts.NewRewardsSugar(e.client, e.chain.RewardsSugar, pin)

	opts := paginationOptions[normalizer.RawRecord](e, ListingRewards, pagination.ModeOffset)
	opts.Name += fmt.Sprintf(":%d", venftID)
	opts.Bound = count
	records, err := pagination.Drain(ctx, func(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
		return rewards.Rewards(ctx, limit, offset, venftID)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("reward listing: %w", err)
	}

	out, err := normalizer.Rewards(records)
	if err != nil {
		return nil, fmt.Errorf("reward listing: %w", err)
	}
	return &RewardListing{ChainID: e.chain.ChainID, Block: block, VeNFTID: venftID, Rewards: out}, nil
}
