package aggregator

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RewardValue is one incentive or fee leg of a row. PriceUSD and ValueUSD
// are nil when the token could not be priced.
type RewardValue struct {
	Token    common.Address   `json:"token"`
	Symbol   string           `json:"symbol,omitempty"`
	Amount   decimal.Decimal  `json:"amount"`
	PriceUSD *decimal.Decimal `json:"priceUsd"`
	ValueUSD *decimal.Decimal `json:"valueUsd"`
}

// Row is one pool with its latest epoch, if any. Amounts are scaled by
// token decimals; USD values of unpriced tokens are zero.
type Row struct {
	Pool   normalizer.Pool
	Symbol string

	Token0USD     decimal.Decimal
	Token1USD     decimal.Decimal
	Reserve0      decimal.Decimal
	Reserve1      decimal.Decimal
	Reserve0USD   decimal.Decimal
	Reserve1USD   decimal.Decimal
	TVLUSD        decimal.Decimal
	Token0Fees    decimal.Decimal
	Token1Fees    decimal.Decimal
	Token0FeesUSD decimal.Decimal
	Token1FeesUSD decimal.Decimal

	HasEpoch       bool
	EpochTimestamp uint64
	Votes          decimal.Decimal
	Emissions      decimal.Decimal
	Incentives     []RewardValue
	Fees           []RewardValue

	IncentivesUSD      decimal.Decimal
	FeesUSD            decimal.Decimal
	TotalIncentivesUSD decimal.Decimal
}

// PricedDataset is the output of one Combine call.
type PricedDataset struct {
	ChainID     uint64
	ChainName   string
	BlockNumber uint64
	GeneratedAt time.Time

	Rows []Row
	// TotalPools is the number of pools before the join.
	TotalPools int
	// Unpriced lists the tokens no source could price, sorted.
	Unpriced []common.Address

	TVLUSD             decimal.Decimal
	IncentivesUSD      decimal.Decimal
	FeesUSD            decimal.Decimal
	TotalIncentivesUSD decimal.Decimal
}

// Columns is the column contract shared by every sink.
var Columns = []string{
	"chain_id",
	"block_number",
	"lp",
	"symbol",
	"pool_type",
	"token0",
	"token1",
	"reserve0",
	"reserve1",
	"token0_usd",
	"token1_usd",
	"reserve0_usd",
	"reserve1_usd",
	"tvl_usd",
	"token0_fees_usd",
	"token1_fees_usd",
	"gauge_alive",
	"has_epoch",
	"epoch_ts",
	"votes",
	"emissions",
	"bribes_usd",
	"fees_usd",
	"total_incentives_usd",
	"bribe_token_prices",
}

// Record renders row i as strings in Columns order. Decimals are exact.
func (ds *PricedDataset) Record(i int) []string {
	r := ds.Rows[i]
	return []string{
		strconv.FormatUint(ds.ChainID, 10),
		strconv.FormatUint(ds.BlockNumber, 10),
		r.Pool.Address.Hex(),
		r.Symbol,
		strconv.FormatInt(r.Pool.Type, 10),
		r.Pool.Token0.Hex(),
		r.Pool.Token1.Hex(),
		r.Reserve0.String(),
		r.Reserve1.String(),
		r.Token0USD.String(),
		r.Token1USD.String(),
		r.Reserve0USD.String(),
		r.Reserve1USD.String(),
		r.TVLUSD.String(),
		r.Token0FeesUSD.String(),
		r.Token1FeesUSD.String(),
		strconv.FormatBool(r.Pool.GaugeAlive),
		strconv.FormatBool(r.HasEpoch),
		strconv.FormatUint(r.EpochTimestamp, 10),
		r.Votes.String(),
		r.Emissions.String(),
		r.IncentivesUSD.String(),
		r.FeesUSD.String(),
		r.TotalIncentivesUSD.String(),
		r.IncentivesJSON(),
	}
}

// Values renders row i as typed values in Columns order, with decimals as
// float64.
func (ds *PricedDataset) Values(i int) []any {
	r := ds.Rows[i]
	return []any{
		int64(ds.ChainID),
		int64(ds.BlockNumber),
		r.Pool.Address.Hex(),
		r.Symbol,
		r.Pool.Type,
		r.Pool.Token0.Hex(),
		r.Pool.Token1.Hex(),
		r.Reserve0.InexactFloat64(),
		r.Reserve1.InexactFloat64(),
		r.Token0USD.InexactFloat64(),
		r.Token1USD.InexactFloat64(),
		r.Reserve0USD.InexactFloat64(),
		r.Reserve1USD.InexactFloat64(),
		r.TVLUSD.InexactFloat64(),
		r.Token0FeesUSD.InexactFloat64(),
		r.Token1FeesUSD.InexactFloat64(),
		r.Pool.GaugeAlive,
		r.HasEpoch,
		int64(r.EpochTimestamp),
		r.Votes.InexactFloat64(),
		r.Emissions.InexactFloat64(),
		r.IncentivesUSD.InexactFloat64(),
		r.FeesUSD.InexactFloat64(),
		r.TotalIncentivesUSD.InexactFloat64(),
		r.IncentivesJSON(),
	}
}

// IncentivesJSON encodes the per-token incentive legs.
func (r Row) IncentivesJSON() string {
	if len(r.Incentives) == 0 {
		return "[]"
	}
	b, err := json.Marshal(r.Incentives)
	if err != nil {
		return "[]"
	}
	return string(b)
}
