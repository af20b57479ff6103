package normalizer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RawRecord is one fixed-position record returned by a listing call, in ABI
// field order. Nested tuples are []any and tuple arrays are []any of []any.
type RawRecord []any

// StructuralError reports a record whose shape does not match the listing it
// came from. It is fatal and never retried.
type StructuralError struct {
	Record string
	Field  string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s record: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("malformed %s record: field %s: %s", e.Record, e.Field, e.Reason)
}

// IsStructural reports whether err is, or wraps, a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func checkArity(kind string, rec RawRecord, arities ...int) error {
	for _, n := range arities {
		if len(rec) == n {
			return nil
		}
	}
	return &StructuralError{
		Record: kind,
		Reason: fmt.Sprintf("expected %v fields, got %d", arities, len(rec)),
	}
}

// fieldReader pulls typed values out of a record and keeps the first error.
type fieldReader struct {
	kind string
	rec  RawRecord
	err  error
}

func newFieldReader(kind string, rec RawRecord) *fieldReader {
	return &fieldReader{kind: kind, rec: rec}
}

func (r *fieldReader) fail(field string, v any, want string) {
	if r.err == nil {
		r.err = &StructuralError{Record: r.kind, Field: field, Reason: fmt.Sprintf("want %s, got %T", want, v)}
	}
}

func (r *fieldReader) address(i int, field string) common.Address {
	switch v := r.rec[i].(type) {
	case common.Address:
		return v
	case *common.Address:
		if v != nil {
			return *v
		}
	}
	r.fail(field, r.rec[i], "address")
	return common.Address{}
}

func (r *fieldReader) bigInt(i int, field string) *big.Int {
	n, ok := toBig(r.rec[i])
	if !ok {
		r.fail(field, r.rec[i], "integer")
		return new(big.Int)
	}
	return n
}

func (r *fieldReader) uint64(i int, field string) uint64 {
	n, ok := toBig(r.rec[i])
	if !ok || !n.IsUint64() {
		r.fail(field, r.rec[i], "uint64")
		return 0
	}
	return n.Uint64()
}

func (r *fieldReader) int64(i int, field string) int64 {
	n, ok := toBig(r.rec[i])
	if !ok || !n.IsInt64() {
		r.fail(field, r.rec[i], "int64")
		return 0
	}
	return n.Int64()
}

func (r *fieldReader) decimals(i int, field string) uint8 {
	n, ok := toBig(r.rec[i])
	if !ok || n.Sign() < 0 || n.BitLen() > 8 {
		r.fail(field, r.rec[i], "uint8")
		return DefaultDecimals
	}
	return uint8(n.Uint64())
}

func (r *fieldReader) boolean(i int, field string) bool {
	v, ok := r.rec[i].(bool)
	if !ok {
		r.fail(field, r.rec[i], "bool")
	}
	return v
}

func (r *fieldReader) text(i int, field string) string {
	v, ok := r.rec[i].(string)
	if !ok {
		r.fail(field, r.rec[i], "string")
	}
	return v
}

// pairs reads a list of (address, amount) tuples.
func (r *fieldReader) pairs(i int, field string) []TokenAmount {
	list, ok := r.rec[i].([]any)
	if !ok {
		r.fail(field, r.rec[i], "list of pairs")
		return nil
	}
	out := make([]TokenAmount, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			r.fail(field, item, "(address, amount) pair")
			return nil
		}
		sub := fieldReader{kind: r.kind, rec: pair}
		out = append(out, TokenAmount{
			Token:  sub.address(0, field),
			Amount: sub.bigInt(1, field),
		})
		if sub.err != nil {
			if r.err == nil {
				r.err = sub.err
			}
			return nil
		}
	}
	return out
}

func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return n, true
	case big.Int:
		return &n, true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case int:
		return big.NewInt(int64(n)), true
	}
	return nil, false
}

// RecordID reads the integer identifier at position 0 of an id-keyed record
// (veNFT and relay listings).
func RecordID(rec RawRecord) (uint64, error) {
	if len(rec) == 0 {
		return 0, &StructuralError{Record: "id-keyed", Reason: "empty record"}
	}
	r := newFieldReader("id-keyed", rec)
	id := r.uint64(0, "id")
	return id, r.err
}
