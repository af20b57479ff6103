package pricing

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PriceUnavailableError is returned by ResolveStrict when no source could
// price the token.
type PriceUnavailableError struct {
	Token        common.Address
	SourcesTried []SourceName
}

func (e *PriceUnavailableError) Error() string {
	tried := make([]string, len(e.SourcesTried))
	for i, s := range e.SourcesTried {
		tried[i] = string(s)
	}
	return fmt.Sprintf("no price for %s (tried: %s)", e.Token.Hex(), strings.Join(tried, ", "))
}
