package normalizer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenAmount is a raw, unscaled amount of a token.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// Pool is one liquidity pool from the LP listing. Token-denominated amounts
// stay raw; they are scaled with the token's decimals when priced.
type Pool struct {
	Address        common.Address `json:"lp"`
	Symbol         string         `json:"symbol"`
	Decimals       uint8          `json:"decimals"`
	Liquidity      *big.Int       `json:"liquidity"`
	Type           int64          `json:"type"`
	Tick           int64          `json:"tick"`
	SqrtRatio      *big.Int       `json:"sqrtRatio"`
	Token0         common.Address `json:"token0"`
	Reserve0       *big.Int       `json:"reserve0"`
	Staked0        *big.Int       `json:"staked0"`
	Token1         common.Address `json:"token1"`
	Reserve1       *big.Int       `json:"reserve1"`
	Staked1        *big.Int       `json:"staked1"`
	Gauge          common.Address `json:"gauge"`
	GaugeLiquidity *big.Int       `json:"gaugeLiquidity"`
	GaugeAlive     bool           `json:"gaugeAlive"`
	FeeReward      common.Address `json:"fee"`
	BribeReward    common.Address `json:"bribe"`
	Factory        common.Address `json:"factory"`
	Emissions      *big.Int       `json:"emissions"`
	EmissionsToken common.Address `json:"emissionsToken"`
	EmissionsCap   *big.Int       `json:"emissionsCap"`
	PoolFee        *big.Int       `json:"poolFee"`
	UnstakedFee    *big.Int       `json:"unstakedFee"`
	Token0Fees     *big.Int       `json:"token0Fees"`
	Token1Fees     *big.Int       `json:"token1Fees"`
	Locked         *big.Int       `json:"locked"`
	Emerging       *big.Int       `json:"emerging"`
	CreatedAt      uint64         `json:"createdAt"`
	NFPM           common.Address `json:"nfpm"`
	ALM            common.Address `json:"alm"`
	Root           common.Address `json:"root"`
}

// Concentrated reports whether the pool is a concentrated-liquidity pool,
// whose type is its tick spacing.
func (p Pool) Concentrated() bool {
	return p.Type > 0
}

const (
	poolFields       = 32
	poolFieldsNoRoot = 31
)

// NewPool builds a Pool from an LP listing record. The trailing root field
// is optional.
func NewPool(rec RawRecord) (Pool, error) {
	if err := checkArity("lp", rec, poolFields, poolFieldsNoRoot); err != nil {
		return Pool{}, err
	}

	r := newFieldReader("lp", rec)
	p := Pool{
		Address:        r.address(0, "lp"),
		Symbol:         r.text(1, "symbol"),
		Decimals:       r.decimals(2, "decimals"),
		Liquidity:      r.bigInt(3, "liquidity"),
		Type:           r.int64(4, "type"),
		Tick:           r.int64(5, "tick"),
		SqrtRatio:      r.bigInt(6, "sqrt_ratio"),
		Token0:         r.address(7, "token0"),
		Reserve0:       r.bigInt(8, "reserve0"),
		Staked0:        r.bigInt(9, "staked0"),
		Token1:         r.address(10, "token1"),
		Reserve1:       r.bigInt(11, "reserve1"),
		Staked1:        r.bigInt(12, "staked1"),
		Gauge:          r.address(13, "gauge"),
		GaugeLiquidity: r.bigInt(14, "gauge_liquidity"),
		GaugeAlive:     r.boolean(15, "gauge_alive"),
		FeeReward:      r.address(16, "fee"),
		BribeReward:    r.address(17, "bribe"),
		Factory:        r.address(18, "factory"),
		Emissions:      r.bigInt(19, "emissions"),
		EmissionsToken: r.address(20, "emissions_token"),
		EmissionsCap:   r.bigInt(21, "emissions_cap"),
		PoolFee:        r.bigInt(22, "pool_fee"),
		UnstakedFee:    r.bigInt(23, "unstaked_fee"),
		Token0Fees:     r.bigInt(24, "token0_fees"),
		Token1Fees:     r.bigInt(25, "token1_fees"),
		Locked:         r.bigInt(26, "locked"),
		Emerging:       r.bigInt(27, "emerging"),
		CreatedAt:      r.uint64(28, "created_at"),
		NFPM:           r.address(29, "nfpm"),
		ALM:            r.address(30, "alm"),
	}
	if len(rec) == poolFields {
		p.Root = r.address(31, "root")
	}
	if r.err != nil {
		return Pool{}, r.err
	}
	return p, nil
}

// Pools normalizes an LP listing and drops pools repeated across pages.
func Pools(records []RawRecord) ([]Pool, error) {
	pools := make([]Pool, 0, len(records))
	for _, rec := range records {
		p, err := NewPool(rec)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return Dedupe(pools, func(p Pool) common.Address { return p.Address }), nil
}

// Token is one entry of the token listing.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Listed   bool           `json:"listed"`
	Emerging bool           `json:"emerging"`
}

const tokenFields = 6

// NewToken builds a Token from a token listing record. The account balance
// column is not kept.
func NewToken(rec RawRecord) (Token, error) {
	if err := checkArity("token", rec, tokenFields); err != nil {
		return Token{}, err
	}

	r := newFieldReader("token", rec)
	t := Token{
		Address:  r.address(0, "token_address"),
		Symbol:   r.text(1, "symbol"),
		Decimals: r.decimals(2, "decimals"),
		Listed:   r.boolean(4, "listed"),
		Emerging: r.boolean(5, "emerging"),
	}
	r.bigInt(3, "account_balance")
	if r.err != nil {
		return Token{}, r.err
	}
	return t, nil
}

// Tokens normalizes a token listing, optionally keeping listed tokens only.
func Tokens(records []RawRecord, listedOnly bool) ([]Token, error) {
	tokens := make([]Token, 0, len(records))
	for _, rec := range records {
		t, err := NewToken(rec)
		if err != nil {
			return nil, err
		}
		if listedOnly && !t.Listed {
			continue
		}
		tokens = append(tokens, t)
	}
	return Dedupe(tokens, func(t Token) common.Address { return t.Address }), nil
}

// Epoch is the latest reward epoch of one pool. Votes and emissions are in
// governance-token units; incentives and fees stay raw per token.
type Epoch struct {
	Timestamp  uint64          `json:"ts"`
	Pool       common.Address  `json:"lp"`
	Votes      decimal.Decimal `json:"votes"`
	Emissions  decimal.Decimal `json:"emissions"`
	Incentives []TokenAmount   `json:"incentives"`
	Fees       []TokenAmount   `json:"fees"`
}

const epochFields = 6

func NewEpoch(rec RawRecord) (Epoch, error) {
	if err := checkArity("epoch", rec, epochFields); err != nil {
		return Epoch{}, err
	}

	r := newFieldReader("epoch", rec)
	e := Epoch{
		Timestamp:  r.uint64(0, "ts"),
		Pool:       r.address(1, "lp"),
		Votes:      Scale(r.bigInt(2, "votes"), DefaultDecimals),
		Emissions:  Scale(r.bigInt(3, "emissions"), DefaultDecimals),
		Incentives: r.pairs(4, "bribes"),
		Fees:       r.pairs(5, "fees"),
	}
	if r.err != nil {
		return Epoch{}, r.err
	}
	return e, nil
}

func Epochs(records []RawRecord) ([]Epoch, error) {
	epochs := make([]Epoch, 0, len(records))
	for _, rec := range records {
		e, err := NewEpoch(rec)
		if err != nil {
			return nil, err
		}
		epochs = append(epochs, e)
	}
	return Dedupe(epochs, func(e Epoch) common.Address { return e.Pool }), nil
}

// VeNFT is one vote-escrow lock.
type VeNFT struct {
	ID               uint64          `json:"id"`
	Account          common.Address  `json:"account"`
	Decimals         uint8           `json:"decimals"`
	Amount           decimal.Decimal `json:"amount"`
	VotingAmount     decimal.Decimal `json:"votingAmount"`
	GovernanceAmount decimal.Decimal `json:"governanceAmount"`
	RebaseAmount     decimal.Decimal `json:"rebaseAmount"`
	ExpiresAt        uint64          `json:"expiresAt"`
	VotedAt          uint64          `json:"votedAt"`
	Votes            []Weight        `json:"votes"`
	Token            common.Address  `json:"token"`
	Permanent        bool            `json:"permanent"`
	DelegateID       uint64          `json:"delegateId"`
	ManagedID        uint64          `json:"managedId"`
}

const veNFTFields = 14

// NewVeNFT builds a VeNFT. Vote weights are shares of the lock's
// governance amount.
func NewVeNFT(rec RawRecord) (VeNFT, error) {
	if err := checkArity("venft", rec, veNFTFields); err != nil {
		return VeNFT{}, err
	}

	r := newFieldReader("venft", rec)
	dec := r.decimals(2, "decimals")
	governance := r.bigInt(5, "governance_amount")
	v := VeNFT{
		ID:               r.uint64(0, "id"),
		Account:          r.address(1, "account"),
		Decimals:         dec,
		Amount:           Scale(r.bigInt(3, "amount"), dec),
		VotingAmount:     Scale(r.bigInt(4, "voting_amount"), dec),
		GovernanceAmount: Scale(governance, dec),
		RebaseAmount:     Scale(r.bigInt(6, "rebase_amount"), dec),
		ExpiresAt:        r.uint64(7, "expires_at"),
		VotedAt:          r.uint64(8, "voted_at"),
		Votes:            DeriveWeight(allocations(r.pairs(9, "votes")), governance, dec),
		Token:            r.address(10, "token"),
		Permanent:        r.boolean(11, "permanent"),
		DelegateID:       r.uint64(12, "delegate_id"),
		ManagedID:        r.uint64(13, "managed_id"),
	}
	if r.err != nil {
		return VeNFT{}, r.err
	}
	return v, nil
}

func VeNFTs(records []RawRecord) ([]VeNFT, error) {
	out := make([]VeNFT, 0, len(records))
	for _, rec := range records {
		v, err := NewVeNFT(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return Dedupe(out, func(v VeNFT) uint64 { return v.ID }), nil
}

// Relay is one managed veNFT (autocompounder or autoconverter).
type Relay struct {
	VeNFTID          uint64          `json:"venftId"`
	Decimals         uint8           `json:"decimals"`
	Amount           decimal.Decimal `json:"amount"`
	VotingAmount     decimal.Decimal `json:"votingAmount"`
	UsedVotingAmount decimal.Decimal `json:"usedVotingAmount"`
	VotedAt          uint64          `json:"votedAt"`
	Votes            []Weight        `json:"votes"`
	Token            common.Address  `json:"token"`
	Compounded       decimal.Decimal `json:"compounded"`
	Withdrawable     decimal.Decimal `json:"withdrawable"`
	RunAt            uint64          `json:"runAt"`
	Manager          common.Address  `json:"manager"`
	Address          common.Address  `json:"relay"`
	Inactive         bool            `json:"inactive"`
	Name             string          `json:"name"`
	AccountVeNFTs    int             `json:"accountVenfts"`
}

const relayFields = 16

// NewRelay builds a Relay. Vote weights are shares of the used voting
// amount.
func NewRelay(rec RawRecord) (Relay, error) {
	if err := checkArity("relay", rec, relayFields); err != nil {
		return Relay{}, err
	}

	r := newFieldReader("relay", rec)
	dec := r.decimals(1, "decimals")
	used := r.bigInt(4, "used_voting_amount")
	rl := Relay{
		VeNFTID:          r.uint64(0, "venft_id"),
		Decimals:         dec,
		Amount:           Scale(r.bigInt(2, "amount"), dec),
		VotingAmount:     Scale(r.bigInt(3, "voting_amount"), dec),
		UsedVotingAmount: Scale(used, dec),
		VotedAt:          r.uint64(5, "voted_at"),
		Votes:            DeriveWeight(allocations(r.pairs(6, "votes")), used, dec),
		Token:            r.address(7, "token"),
		Compounded:       Scale(r.bigInt(8, "compounded"), dec),
		Withdrawable:     Scale(r.bigInt(9, "withdrawable"), dec),
		RunAt:            r.uint64(10, "run_at"),
		Manager:          r.address(11, "manager"),
		Address:          r.address(12, "relay"),
		Inactive:         r.boolean(13, "inactive"),
		Name:             r.text(14, "name"),
	}
	if venfts, ok := rec[15].([]any); ok {
		rl.AccountVeNFTs = len(venfts)
	} else {
		r.fail("account_venfts", rec[15], "list")
	}
	if r.err != nil {
		return Relay{}, r.err
	}
	return rl, nil
}

// Relays normalizes a relay listing, optionally dropping inactive relays.
func Relays(records []RawRecord, activeOnly bool) ([]Relay, error) {
	out := make([]Relay, 0, len(records))
	for _, rec := range records {
		rl, err := NewRelay(rec)
		if err != nil {
			return nil, err
		}
		if activeOnly && rl.Inactive {
			continue
		}
		out = append(out, rl)
	}
	return Dedupe(out, func(r Relay) uint64 { return r.VeNFTID }), nil
}
