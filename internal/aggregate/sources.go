package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"coinspread/pkg/model"
)

const userAgent = "coinspread/1.0 (+https://github.com/coinspread)"

// source holds the request plumbing shared by all aggregator clients.
type source struct {
	name     string
	baseURL  string
	priority int
	client   *http.Client
	limiter  *rate.Limiter
}

func (s *source) Name() string  { return s.name }
func (s *source) Priority() int { return s.priority }

func (s *source) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	u := s.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", s.name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", s.name, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s: decoding response: %w", s.name, err)
	}
	return nil
}

// CoinCap serves asset prices as string-encoded numbers.
type CoinCap struct {
	*source
}

// NewCoinCap creates the CoinCap source (priority 1).
func NewCoinCap(client *http.Client) *CoinCap {
	return &CoinCap{source: &source{
		name:     "CoinCap",
		baseURL:  "https://api.coincap.io/v2",
		priority: 1,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
	}}
}

// FetchQuote returns the USD quote for symbol.
func (c *CoinCap) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	id, err := coinID("coincap", symbol)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			PriceUsd         string `json:"priceUsd"`
			ChangePercent24H string `json:"changePercent24Hr"`
			VolumeUsd24H     string `json:"volumeUsd24Hr"`
			MarketCapUsd     string `json:"marketCapUsd"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/assets/"+id, nil, &resp); err != nil {
		return nil, err
	}

	price := parseFloat(resp.Data.PriceUsd, 0)
	if price <= 0 {
		return nil, fmt.Errorf("%s: unusable price for %s", c.name, symbol)
	}
	return &model.Quote{
		Source:    c.name,
		Symbol:    symbol,
		Price:     price,
		Change24h: parseFloat(resp.Data.ChangePercent24H, 0),
		Volume24h: parseFloat(resp.Data.VolumeUsd24H, 0),
		MarketCap: parseFloat(resp.Data.MarketCapUsd, 0),
		Timestamp: time.Now(),
	}, nil
}

// CoinPaprika nests USD figures under quotes.USD.
type CoinPaprika struct {
	*source
}

// NewCoinPaprika creates the CoinPaprika source (priority 2).
func NewCoinPaprika(client *http.Client) *CoinPaprika {
	return &CoinPaprika{source: &source{
		name:     "CoinPaprika",
		baseURL:  "https://api.coinpaprika.com/v1",
		priority: 2,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
	}}
}

// FetchQuote returns the USD quote for symbol.
func (c *CoinPaprika) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	id, err := coinID("coinpaprika", symbol)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Quotes struct {
			USD struct {
				Price           float64 `json:"price"`
				PercentChange24 float64 `json:"percent_change_24h"`
				Volume24        float64 `json:"volume_24h"`
				MarketCap       float64 `json:"market_cap"`
			} `json:"USD"`
		} `json:"quotes"`
	}
	if err := c.getJSON(ctx, "/tickers/"+id, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Quotes.USD.Price <= 0 {
		return nil, fmt.Errorf("%s: unusable price for %s", c.name, symbol)
	}
	return &model.Quote{
		Source:    c.name,
		Symbol:    symbol,
		Price:     resp.Quotes.USD.Price,
		Change24h: resp.Quotes.USD.PercentChange24,
		Volume24h: resp.Quotes.USD.Volume24,
		MarketCap: resp.Quotes.USD.MarketCap,
		Timestamp: time.Now(),
	}, nil
}

// CoinGecko keys its simple-price response by coin id.
type CoinGecko struct {
	*source
}

// NewCoinGecko creates the CoinGecko source (priority 3).
func NewCoinGecko(client *http.Client) *CoinGecko {
	return &CoinGecko{source: &source{
		name:     "CoinGecko",
		baseURL:  "https://api.coingecko.com/api/v3",
		priority: 3,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(0.8), 1),
	}}
}

// FetchQuote returns the USD quote for symbol.
func (c *CoinGecko) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	id, err := coinID("coingecko", symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"ids":                 {id},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
		"include_24hr_vol":    {"true"},
		"include_market_cap":  {"true"},
	}
	var resp map[string]struct {
		USD          float64 `json:"usd"`
		USD24hChange float64 `json:"usd_24h_change"`
		USD24hVol    float64 `json:"usd_24h_vol"`
		USDMarketCap float64 `json:"usd_market_cap"`
	}
	if err := c.getJSON(ctx, "/simple/price", query, &resp); err != nil {
		return nil, err
	}

	data, ok := resp[id]
	if !ok || data.USD <= 0 {
		return nil, fmt.Errorf("%s: unusable price for %s", c.name, symbol)
	}
	return &model.Quote{
		Source:    c.name,
		Symbol:    symbol,
		Price:     data.USD,
		Change24h: data.USD24hChange,
		Volume24h: data.USD24hVol,
		MarketCap: data.USDMarketCap,
		Timestamp: time.Now(),
	}, nil
}
