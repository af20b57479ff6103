package pricing

import (
	"context"
	"time"

	"github.com/defistate/sugar-client-go/cache"
	"github.com/ethereum/go-ethereum/common"
)

// Store holds resolved prices for the resolver. Implementations must only
// return entries younger than their TTL.
type Store interface {
	Get(ctx context.Context, token common.Address) (TokenPrice, bool)
	Set(ctx context.Context, price TokenPrice)
	Delete(ctx context.Context, token common.Address)
	Clear(ctx context.Context)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	prices *cache.TTL[common.Address, TokenPrice]
}

func NewMemoryStore(ttl time.Duration, opts ...cache.Option) *MemoryStore {
	return &MemoryStore{prices: cache.New[common.Address, TokenPrice](ttl, opts...)}
}

func (s *MemoryStore) Get(_ context.Context, token common.Address) (TokenPrice, bool) {
	return s.prices.Get(token)
}

func (s *MemoryStore) Set(_ context.Context, price TokenPrice) {
	s.prices.Set(price.Token, price)
}

func (s *MemoryStore) Delete(_ context.Context, token common.Address) {
	s.prices.Invalidate(token)
}

func (s *MemoryStore) Clear(context.Context) {
	s.prices.Clear()
}
