package pricing

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

type CoinGeckoConfig struct {
	HTTPConfig
	// Platform is the asset platform id, e.g. "optimistic-ethereum". Empty
	// disables the source.
	Platform string
	// APIKey is sent as the demo API key header when set.
	APIKey string
}

// CoinGeckoSource prices tokens from the CoinGecko simple token price API.
type CoinGeckoSource struct {
	*indexClient
	baseURL  string
	platform string
	header   http.Header
}

func NewCoinGeckoSource(cfg CoinGeckoConfig) *CoinGeckoSource {
	s := &CoinGeckoSource{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		platform: cfg.Platform,
		header:   http.Header{},
	}
	if s.baseURL == "" {
		s.baseURL = DefaultCoinGeckoURL
	}
	if cfg.APIKey != "" {
		s.header.Set("x-cg-demo-api-key", cfg.APIKey)
	}
	s.indexClient = newIndexClient(SourceCoinGecko, cfg.Platform != "", cfg.HTTPConfig, s.request)
	return s
}

// request fetches /simple/token_price/{platform} and reads {addr: {usd: p}}.
func (s *CoinGeckoSource) request(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	addrs := make([]string, len(tokens))
	for i, t := range tokens {
		addrs[i] = strings.ToLower(t.Hex())
	}
	q := url.Values{}
	q.Set("contract_addresses", strings.Join(addrs, ","))
	q.Set("vs_currencies", "usd")

	body, err := s.getJSON(ctx, s.baseURL+"/simple/token_price/"+url.PathEscape(s.platform)+"?"+q.Encode(), s.header)
	if err != nil {
		return nil, err
	}

	prices := make(map[common.Address]decimal.Decimal, len(tokens))
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if !common.IsHexAddress(key.String()) {
			return true
		}
		if p, ok := parsePrice(value.Get("usd")); ok {
			prices[common.HexToAddress(key.String())] = p
		}
		return true
	})
	return prices, nil
}
