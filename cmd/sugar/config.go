package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/defistate/sugar-client-go/chains"
	"github.com/defistate/sugar-client-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Chains lists chain names or aliases to sweep. Empty means every known
	// chain whose RPC variable is set.
	Chains      []string `yaml:"chains"`
	Concurrency int      `yaml:"concurrency"`
	// Interval repeats the sweep. Zero runs once.
	Interval time.Duration `yaml:"interval"`

	InnerJoin        bool `yaml:"inner_join"`
	ListedOnly       bool `yaml:"listed_only"`
	ActiveRelaysOnly bool `yaml:"active_relays_only"`
	SkipVe           bool `yaml:"skip_ve"`
	SkipRelays       bool `yaml:"skip_relays"`

	Pagination PaginationConfig `yaml:"pagination"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Redis      RedisConfig      `yaml:"redis"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Accounts, when set, lists these positions and rewards once instead
	// of sweeping.
	Accounts AccountsConfig `yaml:"accounts"`
}

type AccountsConfig struct {
	Positions []string `yaml:"positions"`
	Rewards   []uint64 `yaml:"rewards"`
}

func (a AccountsConfig) empty() bool {
	return len(a.Positions) == 0 && len(a.Rewards) == 0
}

type PaginationConfig struct {
	PageSize               uint64        `yaml:"page_size"`
	MaxPageSize            uint64        `yaml:"max_page_size"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	MaxConsecutiveSkips    int           `yaml:"max_consecutive_skips"`
	RetryDelay             time.Duration `yaml:"retry_delay"`
	MaxRetryDelay          time.Duration `yaml:"max_retry_delay"`
	PageDelay              time.Duration `yaml:"page_delay"`
}

func (p PaginationConfig) engine() engine.PaginationConfig {
	return engine.PaginationConfig{
		PageSize:               p.PageSize,
		MaxPageSize:            p.MaxPageSize,
		MaxConsecutiveFailures: p.MaxConsecutiveFailures,
		MaxConsecutiveSkips:    p.MaxConsecutiveSkips,
		RetryDelay:             p.RetryDelay,
		MaxRetryDelay:          p.MaxRetryDelay,
		PageDelay:              p.PageDelay,
	}
}

const (
	sourceCoinGecko = "coingecko"
	sourceDefiLlama = "defillama"
)

type PricingConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	OracleBatchSize int           `yaml:"oracle_batch_size"`
	// Order is the order the external sources are tried in after the
	// on-chain oracle.
	Order     []string    `yaml:"order"`
	DefiLlama IndexConfig `yaml:"defillama"`
	CoinGecko IndexConfig `yaml:"coingecko"`
}

type IndexConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BaseURL   string  `yaml:"base_url"`
	BatchSize int     `yaml:"batch_size"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	// APIKey is filled from the environment, never from the file.
	APIKey string `yaml:"-"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type SinksConfig struct {
	CSV      FileSinkConfig `yaml:"csv"`
	Parquet  FileSinkConfig `yaml:"parquet"`
	JSON     JSONSinkConfig `yaml:"json"`
	Postgres struct {
		Enabled bool   `yaml:"enabled"`
		DSN     string `yaml:"dsn"`
	} `yaml:"postgres"`
}

type FileSinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

type JSONSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	// Raw also stores every swept listing as {chain}_snapshot_{block}.json.
	Raw bool `yaml:"raw"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives the logs through a rotating writer instead
	// of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

func defaultConfig() Config {
	return Config{
		Concurrency: 2,
		InnerJoin:   true,
		ListedOnly:  true,
		Pricing: PricingConfig{
			Order:     []string{sourceCoinGecko, sourceDefiLlama},
			DefiLlama: IndexConfig{Enabled: true, RateLimit: 5, Burst: 1},
			CoinGecko: IndexConfig{Enabled: true, RateLimit: 0.5, Burst: 1},
		},
		Sinks: SinksConfig{
			CSV:  FileSinkConfig{Enabled: true, Dir: "output"},
			JSON: JSONSinkConfig{Dir: "output"},
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 100, MaxAgeDays: 7},
	}
}

// LoadConfig reads the YAML file at path over the defaults and fills
// secrets from the environment. A missing file leaves the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Pricing.CoinGecko.APIKey = strings.TrimSpace(os.Getenv("COINGECKO_API_KEY"))
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Sinks.Postgres.DSN = v
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Concurrency < 1 {
		return errors.New("config: concurrency must be at least 1")
	}
	if c.Pagination.MaxPageSize > 0 && c.Pagination.PageSize > c.Pagination.MaxPageSize {
		return errors.New("config: pagination.page_size exceeds pagination.max_page_size")
	}
	if c.Sinks.CSV.Enabled && c.Sinks.CSV.Dir == "" {
		return errors.New("config: sinks.csv.dir is required")
	}
	if c.Sinks.Parquet.Enabled && c.Sinks.Parquet.Dir == "" {
		return errors.New("config: sinks.parquet.dir is required")
	}
	if c.Sinks.JSON.Dir == "" && (c.Sinks.JSON.Enabled || !c.Accounts.empty()) {
		return errors.New("config: sinks.json.dir is required")
	}
	if c.Sinks.Postgres.Enabled && c.Sinks.Postgres.DSN == "" {
		return errors.New("config: sinks.postgres.dsn or DATABASE_URL is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Pricing.Order))
	for _, name := range c.Pricing.Order {
		if name != sourceCoinGecko && name != sourceDefiLlama {
			return fmt.Errorf("config: unknown price source %q in pricing.order", name)
		}
		if seen[name] {
			return fmt.Errorf("config: price source %q repeated in pricing.order", name)
		}
		seen[name] = true
	}
	for _, account := range c.Accounts.Positions {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("config: invalid account %q in accounts.positions", account)
		}
	}
	for _, name := range c.Chains {
		if _, err := chains.ByName(name); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// target is a chain to sweep together with its RPC endpoint.
type target struct {
	chain  chains.Config
	rpcURL string
}

// targets resolves the configured chains. Chains named explicitly must have
// an RPC endpoint; when none are named, chains without one are skipped.
func (c *Config) targets(getenv func(string) string) ([]target, error) {
	if len(c.Chains) == 0 {
		var out []target
		for _, chain := range chains.All() {
			if url := getenv(chain.RPCEnvVar); url != "" {
				out = append(out, target{chain: chain, rpcURL: url})
			}
		}
		if len(out) == 0 {
			return nil, errors.New("config: no chain has an RPC endpoint set")
		}
		return out, nil
	}

	out := make([]target, 0, len(c.Chains))
	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, name := range c.Chains {
		chain, err := chains.ByName(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if _, dup := seen[chain.ChainID]; dup {
			continue
		}
		seen[chain.ChainID] = struct{}{}

		url := getenv(chain.RPCEnvVar)
		if url == "" {
			return nil, fmt.Errorf("config: %s is required for chain %s", chain.RPCEnvVar, chain.Name)
		}
		out = append(out, target{chain: chain, rpcURL: url})
	}
	return out, nil
}
