package engine

import (
	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/defistate/sugar-client-go/normalizer"
)

// Listing names one swept endpoint.
type Listing string

const (
	ListingPools  Listing = "pools"
	ListingTokens Listing = "tokens"
	ListingEpochs Listing = "epochs"
	ListingVeNFTs Listing = "venfts"
	ListingRelays Listing = "relays"

	// Per-account listings, read on demand rather than by Sweep.
	ListingPositions Listing = "positions"
	ListingRewards   Listing = "rewards"
)

// BlockSummary identifies the block a sweep was pinned to.
type BlockSummary struct {
	Number     uint64 `json:"number"`
	ReceivedAt int64  `json:"receivedAt"` // Unix nanoseconds when the sweep pinned the block.
}

// Snapshot is everything one sweep read, at one block.
type Snapshot struct {
	ChainID uint64       `json:"chainId"`
	Block   BlockSummary `json:"block"`

	Pools  []normalizer.Pool  `json:"pools"`
	Tokens []normalizer.Token `json:"tokens"`
	Epochs []normalizer.Epoch `json:"epochs"`
	VeNFTs []normalizer.VeNFT `json:"venfts,omitempty"`
	Relays []normalizer.Relay `json:"relays,omitempty"`

	Dataset *aggregator.PricedDataset `json:"-"`

	// Errors holds the failures of optional listings. The pool, token and
	// epoch listings fail the whole sweep instead.
	Errors map[Listing]string `json:"errors,omitempty"`

	DurationMs int64 `json:"durationMs"`
}

func (s *Snapshot) HasErrors() bool {
	return len(s.Errors) > 0
}

// PositionListing is every position of one account, at one block.
type PositionListing struct {
	ChainID   uint64                `json:"chainId"`
	Block     BlockSummary          `json:"block"`
	Account   common.Address        `json:"account"`
	Positions []normalizer.Position `json:"positions"`
}

// RewardListing is everything one veNFT can claim, at one block.
type RewardListing struct {
	ChainID uint64              `json:"chainId"`
	Block   BlockSummary        `json:"block"`
	VeNFTID uint64              `json:"venftId"`
	Rewards []normalizer.Reward `json:"rewards"`
}
