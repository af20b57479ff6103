// Command sugar sweeps the pool, reward and governance listings of every
// configured chain, prices them and writes the joined dataset to the
// configured sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/defistate/sugar-client-go/engine"
	"github.com/defistate/sugar-client-go/export"
	"github.com/defistate/sugar-client-go/pagination"
	"github.com/defistate/sugar-client-go/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

type flags struct {
	config    string
	env       string
	chains    string
	leftJoin  bool
	positions string
	rewards   string
}

func main() {
	f := parseFlags()
	close := func() {
		os.Exit(1)
	}

	if err := godotenv.Load(f.env); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load %s: %v", f.env, err)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		close()
	}

	rootLogger, err := newLogger(cfg.Log)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger, prometheus.DefaultRegisterer); err != nil {
		rootLogger.Error("Run failed", "error", err)
		close()
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "config.yaml", "Path to the configuration file.")
	flag.StringVar(&f.env, "env", ".env", "Path to an optional .env file.")
	flag.StringVar(&f.chains, "chains", "", "Comma-separated chains to sweep, overriding the configuration.")
	flag.BoolVar(&f.leftJoin, "left-join", false, "Keep pools without a reward epoch.")
	flag.StringVar(&f.positions, "positions", "", "Comma-separated accounts whose positions are listed instead of sweeping.")
	flag.StringVar(&f.rewards, "rewards", "", "Comma-separated veNFT ids whose claimable rewards are listed instead of sweeping.")
	flag.Parse()
	return f
}

func loadConfig(f flags) (*Config, error) {
	log.Printf("Loading configuration from: %s", f.config)
	cfg, err := LoadConfig(f.config)
	if err != nil {
		return nil, err
	}
	if f.chains != "" {
		cfg.Chains = splitList(f.chains)
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	if f.leftJoin {
		cfg.InnerJoin = false
	}
	if f.positions != "" || f.rewards != "" {
		cfg.Accounts.Positions = splitList(f.positions)
		cfg.Accounts.Rewards = nil
		for _, id := range splitList(f.rewards) {
			n, err := strconv.ParseUint(id, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid veNFT id %q: %w", id, err)
			}
			cfg.Accounts.Rewards = append(cfg.Accounts.Rewards, n)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", s)
	}
	return level, nil
}

func newLogger(cfg LogConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSizeMB,
			MaxAge:   cfg.MaxAgeDays,
			Compress: true,
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// chainRunner owns the engine and sinks of one chain.
type chainRunner struct {
	target target
	engine *engine.Engine
	client *ethclient.Client
	sinks  []export.Sink
	// raw, when set, also receives the swept listings.
	raw    export.RawSink
	logger *slog.Logger
}

func run(ctx context.Context, cfg *Config, rootLogger *slog.Logger, reg prometheus.Registerer) error {
	targets, err := cfg.targets(os.Getenv)
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, rootLogger.With("component", "metrics"))
	}
	paginationMetrics := pagination.NewMetrics(reg)
	priceMetrics := pricing.NewMetrics(reg)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	exportLogger := rootLogger.With("component", "export")
	sinks, cleanup, err := newSinks(ctx, cfg.Sinks, exportLogger)
	if err != nil {
		return err
	}
	defer cleanup()

	var raw *export.JSONSink
	if cfg.Sinks.JSON.Raw || !cfg.Accounts.empty() {
		if raw, err = export.NewJSONSink(export.JSONConfig{Dir: cfg.Sinks.JSON.Dir, Logger: exportLogger}); err != nil {
			return err
		}
	}

	runners := make([]*chainRunner, 0, len(targets))
	defer func() {
		for _, r := range runners {
			r.client.Close()
		}
	}()
	for _, t := range targets {
		r, err := newChainRunner(ctx, cfg, t, rdb, sinks, paginationMetrics, priceMetrics, rootLogger)
		if err != nil {
			return fmt.Errorf("chain %s: %w", t.chain.Name, err)
		}
		if cfg.Sinks.JSON.Raw {
			r.raw = raw
		}
		runners = append(runners, r)
	}

	if !cfg.Accounts.empty() {
		return listAccounts(ctx, runners, cfg.Accounts, raw)
	}

	for {
		if err := sweepAll(ctx, runners, cfg.Concurrency); err != nil {
			if cfg.Interval == 0 || ctx.Err() != nil {
				return err
			}
			rootLogger.Warn("Sweep round finished with failures", "error", err)
		}
		if cfg.Interval == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
}

func newChainRunner(
	ctx context.Context,
	cfg *Config,
	t target,
	rdb *redis.Client,
	sinks []export.Sink,
	paginationMetrics *pagination.Metrics,
	priceMetrics *pricing.Metrics,
	rootLogger *slog.Logger,
) (*chainRunner, error) {
	logger := rootLogger.With("chain", t.chain.Name)

	client, err := ethclient.DialContext(ctx, t.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.chain.RPCEnvVar, err)
	}

	opts := []engine.Option{
		engine.WithPaginationMetrics(paginationMetrics),
		engine.WithPriceMetrics(priceMetrics),
		engine.WithExternalSources(externalSources(cfg.Pricing, t, priceMetrics, logger)...),
	}
	if rdb != nil {
		store, err := pricing.NewRedisStore(pricing.RedisStoreConfig{
			Client:  rdb,
			ChainID: t.chain.ChainID,
			TTL:     cfg.Pricing.TTL,
			Logger:  logger.With("component", "price-store"),
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		opts = append(opts, engine.WithPriceStore(store))
	}

	e, err := engine.New(engine.Config{
		Chain:            t.chain,
		Client:           client,
		Logger:           logger.With("component", "engine"),
		Pagination:       cfg.Pagination.engine(),
		InnerJoin:        cfg.InnerJoin,
		ListedOnly:       cfg.ListedOnly,
		ActiveRelaysOnly: cfg.ActiveRelaysOnly,
		SkipVe:           cfg.SkipVe,
		SkipRelays:       cfg.SkipRelays,
		PriceTTL:         cfg.Pricing.TTL,
		OracleBatchSize:  cfg.Pricing.OracleBatchSize,
	}, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &chainRunner{target: t, engine: e, client: client, sinks: sinks, logger: logger}, nil
}

func externalSources(cfg PricingConfig, t target, metrics *pricing.Metrics, logger *slog.Logger) []pricing.Source {
	httpConfig := func(ic IndexConfig, component string) pricing.HTTPConfig {
		return pricing.HTTPConfig{
			BaseURL:   ic.BaseURL,
			BatchSize: ic.BatchSize,
			RateLimit: rate.Limit(ic.RateLimit),
			Burst:     ic.Burst,
			TTL:       cfg.TTL,
			Logger:    logger.With("component", component),
			Metrics:   metrics,
		}
	}

	var sources []pricing.Source
	for _, name := range cfg.Order {
		switch name {
		case sourceDefiLlama:
			if cfg.DefiLlama.Enabled && t.chain.DefiLlamaChain != "" {
				sources = append(sources, pricing.NewDefiLlamaSource(pricing.DefiLlamaConfig{
					HTTPConfig: httpConfig(cfg.DefiLlama, sourceDefiLlama),
					Chain:      t.chain.DefiLlamaChain,
				}))
			}
		case sourceCoinGecko:
			if cfg.CoinGecko.Enabled && t.chain.CoinGeckoPlatform != "" {
				sources = append(sources, pricing.NewCoinGeckoSource(pricing.CoinGeckoConfig{
					HTTPConfig: httpConfig(cfg.CoinGecko, sourceCoinGecko),
					Platform:   t.chain.CoinGeckoPlatform,
					APIKey:     cfg.CoinGecko.APIKey,
				}))
			}
		}
	}
	return sources
}

func newSinks(ctx context.Context, cfg SinksConfig, logger *slog.Logger) ([]export.Sink, func(), error) {
	var (
		sinks   []export.Sink
		cleanup = func() {}
	)
	if cfg.CSV.Enabled {
		s, err := export.NewCSVSink(export.CSVConfig{Dir: cfg.CSV.Dir, Logger: logger})
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Parquet.Enabled {
		s, err := export.NewParquetSink(export.ParquetConfig{Dir: cfg.Parquet.Dir, Compression: cfg.Parquet.Compression, Logger: logger})
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, s)
	}
	if cfg.JSON.Enabled {
		s, err := export.NewJSONSink(export.JSONConfig{Dir: cfg.JSON.Dir, Logger: logger})
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Postgres.Enabled {
		pool, err := export.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = pool.Close
		s, err := export.NewPostgresSink(export.PostgresConfig{Pool: pool, Logger: logger})
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, s)
	}
	return sinks, cleanup, nil
}

// sweepAll sweeps every chain, at most limit at a time. A failing chain
// does not stop the others; the failures are reported together.
func sweepAll(ctx context.Context, runners []*chainRunner, limit int) error {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, r := range runners {
		g.Go(func() error {
			if err := r.sweep(gctx); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				r.logger.Error("Chain sweep failed", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d chains failed", n, len(runners))
	}
	return nil
}

func (r *chainRunner) sweep(ctx context.Context) error {
	snap, err := r.engine.Sweep(ctx)
	if err != nil {
		return err
	}
	if snap.HasErrors() {
		r.logger.Warn("Sweep finished with listing errors", "errors", snap.Errors)
	}

	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, r.target.chain, snap.Dataset); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	if r.raw != nil {
		if err := r.raw.WriteRaw(ctx, r.target.chain, "snapshot", snap.Block.Number, snap); err != nil {
			errs = append(errs, fmt.Errorf("raw snapshot: %w", err))
		}
	}
	return errors.Join(errs...)
}

// listAccounts lists the configured positions and rewards on every chain
// once and stores each listing through sink.
func listAccounts(ctx context.Context, runners []*chainRunner, cfg AccountsConfig, sink export.RawSink) error {
	var errs []error
	for _, r := range runners {
		for _, account := range cfg.Positions {
			addr := common.HexToAddress(account)
			listing, err := r.engine.Positions(ctx, addr)
			if err == nil {
				name := "positions_" + strings.ToLower(addr.Hex())
				err = sink.WriteRaw(ctx, r.target.chain, name, listing.Block.Number, listing)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("chain %s: positions of %s: %w", r.target.chain.Name, account, err))
				continue
			}
			r.logger.Info("Listed positions", "account", addr, "positions", len(listing.Positions))
		}
		if !r.target.chain.HasRewards() {
			continue
		}
		for _, id := range cfg.Rewards {
			listing, err := r.engine.Rewards(ctx, id)
			if err == nil {
				err = sink.WriteRaw(ctx, r.target.chain, fmt.Sprintf("rewards_%d", id), listing.Block.Number, listing)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("chain %s: rewards of %d: %w", r.target.chain.Name, id, err))
				continue
			}
			r.logger.Info("Listed rewards", "venft", id, "rewards", len(listing.Rewards))
		}
	}
	return errors.Join(errs...)
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", "error", err)
	}
}
