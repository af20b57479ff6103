package normalizer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is one liquidity position of an account. Basic pool positions
// have ID 0; concentrated ones carry the NFT id and a tick range.
type Position struct {
	ID              uint64         `json:"id"`
	Pool            common.Address `json:"lp"`
	Liquidity       *big.Int       `json:"liquidity"`
	Staked          *big.Int       `json:"staked"`
	Amount0         *big.Int       `json:"amount0"`
	Amount1         *big.Int       `json:"amount1"`
	Staked0         *big.Int       `json:"staked0"`
	Staked1         *big.Int       `json:"staked1"`
	UnstakedEarned0 *big.Int       `json:"unstakedEarned0"`
	UnstakedEarned1 *big.Int       `json:"unstakedEarned1"`
	EmissionsEarned *big.Int       `json:"emissionsEarned"`
	TickLower       int64          `json:"tickLower"`
	TickUpper       int64          `json:"tickUpper"`
	SqrtRatioLower  *big.Int       `json:"sqrtRatioLower"`
	SqrtRatioUpper  *big.Int       `json:"sqrtRatioUpper"`
	Locker          common.Address `json:"locker"`
	UnlocksAt       uint64         `json:"unlocksAt"`
	ALM             common.Address `json:"alm"`
}

const positionFields = 18

func NewPosition(rec RawRecord) (Position, error) {
	if err := checkArity("position", rec, positionFields); err != nil {
		return Position{}, err
	}

	r := newFieldReader("position", rec)
	p := Position{
		ID:              r.uint64(0, "id"),
		Pool:            r.address(1, "lp"),
		Liquidity:       r.bigInt(2, "liquidity"),
		Staked:          r.bigInt(3, "staked"),
		Amount0:         r.bigInt(4, "amount0"),
		Amount1:         r.bigInt(5, "amount1"),
		Staked0:         r.bigInt(6, "staked0"),
		Staked1:         r.bigInt(7, "staked1"),
		UnstakedEarned0: r.bigInt(8, "unstaked_earned0"),
		UnstakedEarned1: r.bigInt(9, "unstaked_earned1"),
		EmissionsEarned: r.bigInt(10, "emissions_earned"),
		TickLower:       r.int64(11, "tick_lower"),
		TickUpper:       r.int64(12, "tick_upper"),
		SqrtRatioLower:  r.bigInt(13, "sqrt_ratio_lower"),
		SqrtRatioUpper:  r.bigInt(14, "sqrt_ratio_upper"),
		Locker:          r.address(15, "locker"),
		UnlocksAt:       r.uint64(16, "unlocks_at"),
		ALM:             r.address(17, "alm"),
	}
	if r.err != nil {
		return Position{}, r.err
	}
	return p, nil
}

type positionKey struct {
	pool common.Address
	id   uint64
}

// Positions normalizes a position listing. A position is keyed by its pool
// and id.
func Positions(records []RawRecord) ([]Position, error) {
	out := make([]Position, 0, len(records))
	for _, rec := range records {
		p, err := NewPosition(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return Dedupe(out, func(p Position) positionKey { return positionKey{p.Pool, p.ID} }), nil
}

// Reward is an amount a veNFT can claim from one pool. Exactly one of
// FeeReward and BribeReward is set; the amount stays raw.
type Reward struct {
	VeNFTID     uint64         `json:"venftId"`
	Pool        common.Address `json:"lp"`
	Amount      *big.Int       `json:"amount"`
	Token       common.Address `json:"token"`
	FeeReward   common.Address `json:"fee"`
	BribeReward common.Address `json:"bribe"`
}

const rewardFields = 6

func NewReward(rec RawRecord) (Reward, error) {
	if err := checkArity("reward", rec, rewardFields); err != nil {
		return Reward{}, err
	}

	r := newFieldReader("reward", rec)
	rw := Reward{
		VeNFTID:     r.uint64(0, "venft_id"),
		Pool:        r.address(1, "lp"),
		Amount:      r.bigInt(2, "amount"),
		Token:       r.address(3, "token"),
		FeeReward:   r.address(4, "fee"),
		BribeReward: r.address(5, "bribe"),
	}
	if r.err != nil {
		return Reward{}, r.err
	}
	return rw, nil
}

// Incentive reports whether the reward comes from the pool's voting
// incentives rather than its trading fees.
func (r Reward) Incentive() bool {
	return r.BribeReward != (common.Address{})
}

type rewardKey struct {
	pool, token, source common.Address
}

// Rewards normalizes a reward listing. A reward is keyed by its pool, token
// and reward contract.
func Rewards(records []RawRecord) ([]Reward, error) {
	out := make([]Reward, 0, len(records))
	for _, rec := range records {
		rw, err := NewReward(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return Dedupe(out, func(r Reward) rewardKey {
		source := r.FeeReward
		if r.Incentive() {
			source = r.BribeReward
		}
		return rewardKey{r.Pool, r.Token, source}
	}), nil
}
