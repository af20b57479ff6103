// Package contracts binds the read-only helper contracts a sweep talks to.
// Every call goes through eth_call and returns raw positional records for
// the normalizer.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller executes eth_call. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// CallError is a failed eth_call. It is treated as transient: the
// paginator retries it with a smaller page.
type CallError struct {
	Contract string
	Method   string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Contract, e.Method, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Option configures a contract binding.
type Option interface {
	apply(*contract)
}

type funcOption func(*contract)

func (f funcOption) apply(c *contract) {
	f(c)
}

// AtBlock pins every call of the binding to block. A nil block reads the
// latest state.
func AtBlock(block *big.Int) Option {
	return funcOption(func(c *contract) {
		if block != nil {
			c.block = new(big.Int).Set(block)
		}
	})
}

type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	caller  Caller
	block   *big.Int
}

func newContract(name string, parsed abi.ABI, caller Caller, address common.Address, opts []Option) contract {
	c := contract{
		name:    name,
		address: address,
		abi:     parsed,
		caller:  caller,
	}
	for _, opt := range opts {
		opt.apply(&c)
	}
	return c
}

// call packs args, executes the call and unpacks the outputs. Transport and
// revert errors become *CallError; undecodable output is structural.
func (c *contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.name, method, err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, c.block)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CallError{Contract: c.name, Method: method, Err: err}
	}
	if len(out) == 0 {
		return nil, &normalizer.StructuralError{
			Record: c.name + "." + method,
			Reason: fmt.Sprintf("empty return data from %s", c.address.Hex()),
		}
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, &normalizer.StructuralError{Record: c.name + "." + method, Reason: err.Error()}
	}
	return values, nil
}

// records calls a method returning a single tuple array and flattens each
// element.
func (c *contract) records(ctx context.Context, method string, args ...any) ([]normalizer.RawRecord, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, &normalizer.StructuralError{
			Record: c.name + "." + method,
			Reason: fmt.Sprintf("expected one output, got %d", len(values)),
		}
	}

	list, ok := flatten(values[0]).([]any)
	if !ok {
		return nil, &normalizer.StructuralError{
			Record: c.name + "." + method,
			Reason: fmt.Sprintf("expected a tuple array, got %T", values[0]),
		}
	}

	records := make([]normalizer.RawRecord, 0, len(list))
	for _, item := range list {
		rec, ok := item.([]any)
		if !ok {
			return nil, &normalizer.StructuralError{
				Record: c.name + "." + method,
				Reason: fmt.Sprintf("expected a tuple, got %T", item),
			}
		}
		records = append(records, normalizer.RawRecord(rec))
	}
	return records, nil
}

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	addressType = reflect.TypeOf(common.Address{})
	hashType    = reflect.TypeOf(common.Hash{})
)

// flatten turns the reflect-built structs the ABI decoder produces into
// positional values. Structs and slices become []any; scalars are kept.
func flatten(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Type() {
	case bigIntType, addressType, hashType:
		return v
	}

	switch rv.Kind() {
	case reflect.Struct:
		out := make([]any, rv.NumField())
		for i := range out {
			out[i] = flatten(rv.Field(i).Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = flatten(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}
