package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/defistate/sugar-client-go/cache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultIndexBatchSize = 100
	DefaultIndexTTL       = time.Minute

	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 4 << 20
)

// HTTPConfig holds the settings shared by the external index sources.
type HTTPConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	// BatchSize is the number of tokens per request.
	BatchSize int
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int
	TTL       time.Duration
	// FailureTTL is how long the tokens of a failed request read as absent.
	FailureTTL time.Duration
	Clock      func() time.Time

	Logger  Logger
	Metrics *Metrics
}

type batchFetcher func(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error)

// indexClient implements caching, batching and throttling for a remote
// price index. The concrete source only knows how to build a request and
// read the response.
type indexClient struct {
	name      SourceName
	enabled   bool
	client    *http.Client
	limiter   *rate.Limiter
	batchSize int
	logger    Logger
	metrics   *Metrics
	cache     *cache.TTL[common.Address, priceEntry]
	failed    *cache.TTL[common.Address, struct{}]
	fetch     batchFetcher
}

func newIndexClient(name SourceName, enabled bool, cfg HTTPConfig, fetch batchFetcher) *indexClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIndexBatchSize
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultIndexTTL
	}
	if cfg.FailureTTL == 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	burst := max(cfg.Burst, 1)

	var opts []cache.Option
	if cfg.Clock != nil {
		opts = append(opts, cache.WithClock(cfg.Clock))
	}

	return &indexClient{
		name:      name,
		enabled:   enabled,
		client:    cfg.HTTPClient,
		limiter:   rate.NewLimiter(limit, burst),
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		cache:     cache.New[common.Address, priceEntry](cfg.TTL, opts...),
		failed:    cache.New[common.Address, struct{}](cfg.FailureTTL, opts...),
		fetch:     fetch,
	}
}

func (c *indexClient) Name() SourceName {
	return c.name
}

// Resolve serves the token from cache or looks it up alone.
func (c *indexClient) Resolve(ctx context.Context, token common.Address) (decimal.Decimal, bool) {
	if !c.enabled {
		return decimal.Decimal{}, false
	}
	e, ok := c.cache.Get(token)
	if !ok {
		if _, failed := c.failed.Get(token); failed {
			return decimal.Decimal{}, false
		}
		c.Prefetch(ctx, []common.Address{token})
		e, ok = c.cache.Get(token)
	}
	if !ok || !e.known {
		return decimal.Decimal{}, false
	}
	return e.price, true
}

// Prefetch looks up every uncached token in batches. Tokens missing from a
// successful response are cached as unknown for the TTL; the tokens of a
// failed request read as absent for FailureTTL.
func (c *indexClient) Prefetch(ctx context.Context, tokens []common.Address) {
	if !c.enabled {
		return
	}
	pending := uniqueTokens(tokens, func(t common.Address) bool {
		if t == (common.Address{}) {
			return true
		}
		if _, cached := c.cache.Get(t); cached {
			return true
		}
		_, failed := c.failed.Get(t)
		return failed
	})

	for _, batch := range chunk(pending, c.batchSize) {
		prices, err := c.fetchBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Price index request failed", "source", c.name, "tokens", len(batch), "error", err)
			for _, t := range batch {
				c.failed.Set(t, struct{}{})
			}
			continue
		}
		for _, t := range batch {
			p, ok := prices[t]
			c.cache.Set(t, priceEntry{price: p, known: ok})
		}
	}
}

// Lookup queries the index for tokens, bypassing the cache. Failed batches
// are left out of the result.
func (c *indexClient) Lookup(ctx context.Context, tokens []common.Address) map[common.Address]decimal.Decimal {
	out := make(map[common.Address]decimal.Decimal)
	if !c.enabled {
		return out
	}
	for _, batch := range chunk(uniqueTokens(tokens, nil), c.batchSize) {
		prices, err := c.fetchBatch(ctx, batch)
		if err != nil {
			c.logger.Debug("Price index request failed", "source", c.name, "tokens", len(batch), "error", err)
			continue
		}
		for t, p := range prices {
			out[t] = p
		}
	}
	return out
}

func (c *indexClient) fetchBatch(ctx context.Context, batch []common.Address) (map[common.Address]decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	defer c.metrics.observe(c.name, time.Now())
	return c.fetch(ctx, batch)
}

// Reset drops every cached price and failure.
func (c *indexClient) Reset() {
	c.cache.Clear()
	c.failed.Clear()
}

// getJSON performs a GET and returns the body if it is valid JSON from a
// 2xx response.
func (c *indexClient) getJSON(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	return body, nil
}

// parsePrice reads a positive price from a JSON number or string.
func parsePrice(v gjson.Result) (decimal.Decimal, bool) {
	if !v.Exists() {
		return decimal.Decimal{}, false
	}
	p, err := decimal.NewFromString(v.String())
	if err != nil || !p.IsPositive() {
		return decimal.Decimal{}, false
	}
	return p, true
}
