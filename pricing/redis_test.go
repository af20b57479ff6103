package pricing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client for it.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("6379/tcp"),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		client.Close()
		_ = container.Terminate(ctx)
	})
	return client
}

func TestRedisStore(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	clock := newFakeClock()

	store, err := NewRedisStore(RedisStoreConfig{Client: client, ChainID: 10, TTL: time.Minute, Clock: clock.Now})
	require.NoError(t, err)

	price := TokenPrice{Token: wbtc, Price: mustDec("62500.25"), Source: SourceOracle, ResolvedAt: clock.Now()}
	store.Set(ctx, price)

	t.Run("round trip", func(t *testing.T) {
		got, ok := store.Get(ctx, wbtc)
		require.True(t, ok)
		assert.True(t, price.Price.Equal(got.Price))
		assert.Equal(t, SourceOracle, got.Source)
		assert.True(t, price.ResolvedAt.Equal(got.ResolvedAt))

		ttl, err := client.TTL(ctx, "sugar:price:10:"+lower(wbtc)).Result()
		require.NoError(t, err)
		assert.Positive(t, ttl)
	})

	t.Run("stale entries are misses", func(t *testing.T) {
		clock.Advance(time.Minute)
		_, ok := store.Get(ctx, wbtc)
		assert.False(t, ok)
	})

	t.Run("chains do not share keys", func(t *testing.T) {
		other, err := NewRedisStore(RedisStoreConfig{Client: client, ChainID: 8453, Clock: clock.Now})
		require.NoError(t, err)
		store.Set(ctx, TokenPrice{Token: velo, Price: mustDec("0.05"), ResolvedAt: clock.Now()})
		_, ok := other.Get(ctx, velo)
		assert.False(t, ok)
	})

	t.Run("undecodable entries are dropped", func(t *testing.T) {
		key := "sugar:price:10:" + lower(usdt)
		require.NoError(t, client.Set(ctx, key, "{not json", 0).Err())
		_, ok := store.Get(ctx, usdt)
		assert.False(t, ok)
		assert.Zero(t, client.Exists(ctx, key).Val())
	})

	t.Run("delete and clear", func(t *testing.T) {
		tokens := []common.Address{tokenA, tokenB, tokenC}
		for _, tok := range tokens {
			store.Set(ctx, TokenPrice{Token: tok, Price: mustDec("1"), ResolvedAt: clock.Now()})
		}
		store.Delete(ctx, tokenA)
		_, ok := store.Get(ctx, tokenA)
		assert.False(t, ok)
		_, ok = store.Get(ctx, tokenB)
		assert.True(t, ok)

		store.Clear(ctx)
		keys, err := client.Keys(ctx, "sugar:price:10:*").Result()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("resolver backed by redis", func(t *testing.T) {
		src := newFakeSource(SourceOracle, map[common.Address]decimal.Decimal{tokenC: mustDec("3")})
		r, err := NewResolver(ResolverConfig{Sources: []Source{src}, Store: store, Clock: clock.Now})
		require.NoError(t, err)

		r.Resolve(ctx, tokenC)
		r.Resolve(ctx, tokenC)
		assert.Equal(t, 1, src.callCount(tokenC))
	})
}

func TestNewRedisStoreValidation(t *testing.T) {
	_, err := NewRedisStore(RedisStoreConfig{})
	assert.ErrorContains(t, err, "Client")

	_, err = NewRedisStore(RedisStoreConfig{Client: redis.NewClient(&redis.Options{})})
	assert.ErrorContains(t, err, "ChainID")
}
