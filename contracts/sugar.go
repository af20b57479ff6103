package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/ethereum/go-ethereum/common"
)

// PoolFilter selects pool kinds in LpSugar.all.
type PoolFilter uint64

const (
	AllPools PoolFilter = iota
	BasicPools
	ConcentratedPools
)

// LpSugar lists pools and tokens.
type LpSugar struct {
	contract
}

func NewLpSugar(caller Caller, address common.Address, opts ...Option) *LpSugar {
	return &LpSugar{contract: newContract("LpSugar", lpSugarABI, caller, address, opts)}
}

// Count returns the number of pool indices behind the listings.
func (s *LpSugar) Count(ctx context.Context) (uint64, error) {
	values, err := s.call(ctx, "count")
	if err != nil {
		return 0, err
	}
	n, ok := values[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, &normalizer.StructuralError{Record: "LpSugar.count", Reason: fmt.Sprintf("unexpected output %v", values[0])}
	}
	return n.Uint64(), nil
}

// All returns one offset page of pools.
func (s *LpSugar) All(ctx context.Context, limit, offset uint64, filter PoolFilter) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "all", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset), new(big.Int).SetUint64(uint64(filter)))
}

// Tokens returns one offset page of tokens. The connectors are always
// echoed back, so a page holding only them carries no new tokens.
func (s *LpSugar) Tokens(ctx context.Context, limit, offset uint64, account common.Address, connectors []common.Address) ([]normalizer.RawRecord, error) {
	if connectors == nil {
		connectors = []common.Address{}
	}
	return s.records(ctx, "tokens", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset), account, connectors)
}

// Positions returns the positions of account in the pools at indices
// [offset, offset+limit). Like EpochsLatest, a page can be empty before the
// end of the index range.
func (s *LpSugar) Positions(ctx context.Context, limit, offset uint64, account common.Address) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "positions", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset), account)
}

// RewardsSugar lists reward epochs and claimable rewards.
type RewardsSugar struct {
	contract
}

func NewRewardsSugar(caller Caller, address common.Address, opts ...Option) *RewardsSugar {
	return &RewardsSugar{contract: newContract("RewardsSugar", rewardsSugarABI, caller, address, opts)}
}

// EpochsLatest returns the latest epoch of the pools at indices
// [offset, offset+limit). Pools without a gauge are omitted, so pages can
// be short or empty before the end of the index range.
func (s *RewardsSugar) EpochsLatest(ctx context.Context, limit, offset uint64) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "epochsLatest", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset))
}

// EpochsByAddress returns one page of the epoch history of pool.
func (s *RewardsSugar) EpochsByAddress(ctx context.Context, limit, offset uint64, pool common.Address) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "epochsByAddress", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset), pool)
}

// Rewards returns the fee and incentive rewards a veNFT can claim from the
// pools at indices [offset, offset+limit).
func (s *RewardsSugar) Rewards(ctx context.Context, limit, offset, venftID uint64) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "rewards", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(offset), new(big.Int).SetUint64(venftID))
}

// VeSugar lists vote-escrow locks.
type VeSugar struct {
	contract
}

func NewVeSugar(caller Caller, address common.Address, opts ...Option) *VeSugar {
	return &VeSugar{contract: newContract("VeSugar", veSugarABI, caller, address, opts)}
}

// All returns up to limit locks with id >= startID.
func (s *VeSugar) All(ctx context.Context, limit, startID uint64) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "all", new(big.Int).SetUint64(limit), new(big.Int).SetUint64(startID))
}

// RelaySugar lists relays. The listing is not paginated.
type RelaySugar struct {
	contract
}

func NewRelaySugar(caller Caller, address common.Address, opts ...Option) *RelaySugar {
	return &RelaySugar{contract: newContract("RelaySugar", relaySugarABI, caller, address, opts)}
}

// All returns every relay. A zero account omits account specific data.
func (s *RelaySugar) All(ctx context.Context, account common.Address) ([]normalizer.RawRecord, error) {
	return s.records(ctx, "all", account)
}
