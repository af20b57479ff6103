package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/ethereum/go-ethereum/common"
)

// Oracle is the spot price aggregator.
type Oracle struct {
	contract
}

func NewOracle(caller Caller, address common.Address, opts ...Option) *Oracle {
	return &Oracle{contract: newContract("Oracle", oracleABI, caller, address, opts)}
}

// ManyRatesToEth returns, for each token, its rate to the native asset as a
// 1e18 fixed-point integer that assumes 18 token decimals. A zero rate means
// no route above threshold was found.
func (o *Oracle) ManyRatesToEth(ctx context.Context, tokens []common.Address, useWrappers bool, connectors []common.Address, threshold uint64) ([]*big.Int, error) {
	if connectors == nil {
		connectors = []common.Address{}
	}
	values, err := o.call(ctx, "getManyRatesToEthWithCustomConnectors", tokens, useWrappers, connectors, new(big.Int).SetUint64(threshold))
	if err != nil {
		return nil, err
	}
	rates, ok := values[0].([]*big.Int)
	if !ok || len(rates) != len(tokens) {
		return nil, &normalizer.StructuralError{
			Record: "Oracle.getManyRatesToEthWithCustomConnectors",
			Reason: fmt.Sprintf("expected %d rates, got %v", len(tokens), values[0]),
		}
	}
	return rates, nil
}

// ERC20 reads token metadata.
type ERC20 struct {
	caller Caller
	opts   []Option
}

func NewERC20(caller Caller, opts ...Option) *ERC20 {
	return &ERC20{caller: caller, opts: opts}
}

// Decimals calls decimals() on token.
func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	c := newContract("ERC20", erc20ABI, e.caller, token, e.opts)
	values, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, &normalizer.StructuralError{Record: "ERC20.decimals", Reason: fmt.Sprintf("unexpected output %T", values[0])}
	}
	return d, nil
}

// Symbol calls symbol() on token.
func (e *ERC20) Symbol(ctx context.Context, token common.Address) (string, error) {
	c := newContract("ERC20", erc20ABI, e.caller, token, e.opts)
	values, err := c.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", &normalizer.StructuralError{Record: "ERC20.symbol", Reason: fmt.Sprintf("unexpected output %T", values[0])}
	}
	return s, nil
}
