package chains

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config describes one chain: where its helper contracts live and how
// external price indexes name it. A zero address means the contract is not
// deployed on that chain.
type Config struct {
	ChainID   uint64
	Name      string
	RPCEnvVar string

	LpSugar      common.Address
	RewardsSugar common.Address
	VeSugar      common.Address
	RelaySugar   common.Address
	PriceOracle  common.Address

	// Connectors are the routing tokens handed to the rate oracle and the
	// token listing, in priority order.
	Connectors []common.Address
	// StableConnector is the stable asset that anchors on-chain USD prices.
	StableConnector common.Address
	// Stables are priced at exactly 1 USD without a query.
	Stables []common.Address

	DefiLlamaChain    string
	CoinGeckoPlatform string
}

func (c Config) HasRewards() bool {
	return c.RewardsSugar != (common.Address{})
}

func (c Config) HasVe() bool {
	return c.VeSugar != (common.Address{})
}

func (c Config) HasRelay() bool {
	return c.RelaySugar != (common.Address{})
}

// HasOracle reports whether on-chain USD prices can be derived.
func (c Config) HasOracle() bool {
	return c.PriceOracle != (common.Address{}) && c.StableConnector != (common.Address{})
}

// Validate checks the fields every sweep depends on.
func (c Config) Validate() error {
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.Name == "" {
		return errors.New("config: Name is required")
	}
	if c.LpSugar == (common.Address{}) {
		return errors.New("config: LpSugar address is required")
	}
	return nil
}
