package pricing

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const DefaultDefiLlamaURL = "https://coins.llama.fi"

type DefiLlamaConfig struct {
	HTTPConfig
	// Chain is the index's name for the chain, e.g. "base". Empty disables
	// the source.
	Chain string
}

// DefiLlamaSource prices tokens from the DefiLlama coins API.
type DefiLlamaSource struct {
	*indexClient
	baseURL string
	chain   string
}

func NewDefiLlamaSource(cfg DefiLlamaConfig) *DefiLlamaSource {
	s := &DefiLlamaSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		chain:   cfg.Chain,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultDefiLlamaURL
	}
	s.indexClient = newIndexClient(SourceDefiLlama, cfg.Chain != "", cfg.HTTPConfig, s.request)
	return s
}

// request fetches /prices/current/{chain}:{addr},... and reads
// coins["{chain}:{addr}"].price.
func (s *DefiLlamaSource) request(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	ids := make([]string, len(tokens))
	for i, t := range tokens {
		ids[i] = s.chain + ":" + strings.ToLower(t.Hex())
	}

	body, err := s.getJSON(ctx, s.baseURL+"/prices/current/"+strings.Join(ids, ","), nil)
	if err != nil {
		return nil, err
	}

	prices := make(map[common.Address]decimal.Decimal, len(tokens))
	gjson.GetBytes(body, "coins").ForEach(func(key, value gjson.Result) bool {
		chain, addr, ok := strings.Cut(key.String(), ":")
		if !ok || !strings.EqualFold(chain, s.chain) || !common.IsHexAddress(addr) {
			return true
		}
		if p, ok := parsePrice(value.Get("price")); ok {
			prices[common.HexToAddress(addr)] = p
		}
		return true
	})
	return prices, nil
}
