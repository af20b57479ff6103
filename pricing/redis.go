package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sugar:price"

type RedisStoreConfig struct {
	Client  redis.Cmdable
	ChainID uint64
	TTL     time.Duration
	Clock   func() time.Time
	Logger  Logger
}

func (c *RedisStoreConfig) validate() error {
	if c.Client == nil {
		return errors.New("config: Client is required")
	}
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	return nil
}

// RedisStore shares resolved prices between processes. Keys expire with
// the TTL and entries are also checked against their resolution time on
// read. Redis faults read as misses.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
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
	return &RedisStore{
		client: cfg.Client,
		prefix: fmt.Sprintf("%s:%d:", redisKeyPrefix, cfg.ChainID),
		ttl:    cfg.TTL,
		now:    cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

func (s *RedisStore) key(token common.Address) string {
	return s.prefix + strings.ToLower(token.Hex())
}

func (s *RedisStore) Get(ctx context.Context, token common.Address) (TokenPrice, bool) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TokenPrice{}, false
	}
	if err != nil {
		s.logger.Warn("Failed to read price from redis", "token", token.Hex(), "error", err)
		return TokenPrice{}, false
	}

	var p TokenPrice
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("Dropping undecodable price entry", "token", token.Hex(), "error", err)
		s.Delete(ctx, token)
		return TokenPrice{}, false
	}
	if s.now().Sub(p.ResolvedAt) >= s.ttl {
		return TokenPrice{}, false
	}
	return p, true
}

func (s *RedisStore) Set(ctx context.Context, price TokenPrice) {
	raw, err := json.Marshal(price)
	if err != nil {
		s.logger.Error("Failed to encode price", "token", price.Token.Hex(), "error", err)
		return
	}
	if err := s.client.Set(ctx, s.key(price.Token), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("Failed to write price to redis", "token", price.Token.Hex(), "error", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, token common.Address) {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		s.logger.Warn("Failed to delete price from redis", "token", token.Hex(), "error", err)
	}
}

// Clear deletes every price of this chain.
func (s *RedisStore) Clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("Failed to scan prices in redis", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("Failed to clear prices in redis", "error", err)
	}
}
