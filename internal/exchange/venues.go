package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coinspread/internal/config"
	"coinspread/pkg/model"
)

// Requests per second tolerated by each venue's public API.
const (
	binanceRate = 10
	okxRate     = 5
	kucoinRate  = 3
	gateRate    = 3
	bybitRate   = 5
)

// Name returns the venue's display name.
func (v *venue) Name() string {
	return v.name
}

// State reports the venue's breaker status.
func (v *venue) State() model.ExchangeState {
	return v.breaker.State(v.name)
}

// Binance fetches spot tickers from the Binance public API.
type Binance struct {
	*venue
}

// NewBinance creates a Binance provider.
func NewBinance(client *http.Client, api config.APIConfig) *Binance {
	return &Binance{venue: newVenue("Binance", []string{
		"https://api.binance.com/api/v3",
		"https://api1.binance.com/api/v3",
		"https://api2.binance.com/api/v3",
	}, client, binanceRate, api)}
}

// FetchTicker returns the 24h ticker for symbol.
func (b *Binance) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var resp struct {
		LastPrice          flexFloat `json:"lastPrice"`
		BidPrice           flexFloat `json:"bidPrice"`
		AskPrice           flexFloat `json:"askPrice"`
		Volume             flexFloat `json:"volume"`
		PriceChangePercent flexFloat `json:"priceChangePercent"`
	}

	query := url.Values{"symbol": {FormatSymbol(symbol, "")}}
	if err := b.getJSON(ctx, "/ticker/24hr", query, &resp); err != nil {
		return nil, err
	}

	t := &model.Ticker{
		Exchange:  b.name,
		Symbol:    symbol,
		Price:     resp.LastPrice.value(),
		Bid:       resp.BidPrice.value(),
		Ask:       resp.AskPrice.value(),
		Volume24h: resp.Volume.value(),
		Change24h: resp.PriceChangePercent.value(),
		Timestamp: time.Now(),
	}
	if err := validateTicker(t); err != nil {
		return nil, err
	}
	return t, nil
}

// OKX fetches spot tickers from the OKX public API.
type OKX struct {
	*venue
}

// NewOKX creates an OKX provider.
func NewOKX(client *http.Client, api config.APIConfig) *OKX {
	return &OKX{venue: newVenue("OKX", []string{
		"https://www.okx.com/api/v5",
		"https://aws.okx.com/api/v5",
	}, client, okxRate, api)}
}

// FetchTicker returns the ticker for symbol. OKX reports the 24h open; the
// change percentage is derived from it.
func (o *OKX) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var resp struct {
		Data []struct {
			Last   flexFloat `json:"last"`
			BidPx  flexFloat `json:"bidPx"`
			AskPx  flexFloat `json:"askPx"`
			Vol24h flexFloat `json:"vol24h"`
			Open24 flexFloat `json:"open24h"`
		} `json:"data"`
	}

	query := url.Values{"instId": {FormatSymbol(symbol, "-")}}
	if err := o.getJSON(ctx, "/market/ticker", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s: %w: empty data for %s", o.name, ErrInvalidTicker, symbol)
	}

	d := resp.Data[0]
	var change float64
	if open := d.Open24.value(); open > 0 {
		change = (d.Last.value() - open) / open * 100
	}

	t := &model.Ticker{
		Exchange:  o.name,
		Symbol:    symbol,
		Price:     d.Last.value(),
		Bid:       d.BidPx.value(),
		Ask:       d.AskPx.value(),
		Volume24h: d.Vol24h.value(),
		Change24h: change,
		Timestamp: time.Now(),
	}
	if err := validateTicker(t); err != nil {
		return nil, err
	}
	return t, nil
}

// KuCoin fetches level-1 order book tickers from the KuCoin public API.
type KuCoin struct {
	*venue
}

// NewKuCoin creates a KuCoin provider.
func NewKuCoin(client *http.Client, api config.APIConfig) *KuCoin {
	return &KuCoin{venue: newVenue("KuCoin", []string{
		"https://api.kucoin.com/api/v1",
		"https://openapi-v2.kucoin.com/api/v1",
	}, client, kucoinRate, api)}
}

// FetchTicker returns the best bid/ask for symbol. The level-1 endpoint does
// not carry a 24h change figure.
func (k *KuCoin) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var resp struct {
		Data struct {
			Price   flexFloat `json:"price"`
			BestBid flexFloat `json:"bestBid"`
			BestAsk flexFloat `json:"bestAsk"`
			Size    flexFloat `json:"size"`
		} `json:"data"`
	}

	query := url.Values{"symbol": {FormatSymbol(symbol, "-")}}
	if err := k.getJSON(ctx, "/market/orderbook/level1", query, &resp); err != nil {
		return nil, err
	}

	t := &model.Ticker{
		Exchange:  k.name,
		Symbol:    symbol,
		Price:     resp.Data.Price.value(),
		Bid:       resp.Data.BestBid.value(),
		Ask:       resp.Data.BestAsk.value(),
		Volume24h: resp.Data.Size.value(),
		Timestamp: time.Now(),
	}
	if err := validateTicker(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Gate fetches spot tickers from the Gate.io public API.
type Gate struct {
	*venue
}

// NewGate creates a Gate.io provider.
func NewGate(client *http.Client, api config.APIConfig) *Gate {
	return &Gate{venue: newVenue("Gate.io", []string{
		"https://api.gateio.ws/api/v4",
	}, client, gateRate, api)}
}

// FetchTicker returns the ticker for symbol.
func (g *Gate) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var resp []struct {
		Last             flexFloat `json:"last"`
		HighestBid       flexFloat `json:"highest_bid"`
		LowestAsk        flexFloat `json:"lowest_ask"`
		BaseVolume       flexFloat `json:"base_volume"`
		ChangePercentage flexFloat `json:"change_percentage"`
	}

	query := url.Values{"currency_pair": {FormatSymbol(symbol, "_")}}
	if err := g.getJSON(ctx, "/spot/tickers", query, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%s: %w: empty response for %s", g.name, ErrInvalidTicker, symbol)
	}

	d := resp[0]
	t := &model.Ticker{
		Exchange:  g.name,
		Symbol:    symbol,
		Price:     d.Last.value(),
		Bid:       d.HighestBid.value(),
		Ask:       d.LowestAsk.value(),
		Volume24h: d.BaseVolume.value(),
		Change24h: d.ChangePercentage.value(),
		Timestamp: time.Now(),
	}
	if err := validateTicker(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Bybit fetches spot tickers from the Bybit public API.
type Bybit struct {
	*venue
}

// NewBybit creates a Bybit provider.
func NewBybit(client *http.Client, api config.APIConfig) *Bybit {
	return &Bybit{venue: newVenue("Bybit", []string{
		"https://api.bybit.com/v5",
		"https://api.bytick.com/v5",
	}, client, bybitRate, api)}
}

// FetchTicker returns the spot ticker for symbol. Bybit reports the 24h
// change as a fraction, converted here to a percentage.
func (b *Bybit) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var resp struct {
		Result struct {
			List []struct {
				LastPrice    flexFloat `json:"lastPrice"`
				Bid1Price    flexFloat `json:"bid1Price"`
				Ask1Price    flexFloat `json:"ask1Price"`
				Volume24h    flexFloat `json:"volume24h"`
				Price24hPcnt flexFloat `json:"price24hPcnt"`
			} `json:"list"`
		} `json:"result"`
	}

	query := url.Values{
		"category": {"spot"},
		"symbol":   {FormatSymbol(symbol, "")},
	}
	if err := b.getJSON(ctx, "/market/tickers", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result.List) == 0 {
		return nil, fmt.Errorf("%s: %w: empty list for %s", b.name, ErrInvalidTicker, symbol)
	}

	d := resp.Result.List[0]
	t := &model.Ticker{
		Exchange:  b.name,
		Symbol:    symbol,
		Price:     d.LastPrice.value(),
		Bid:       d.Bid1Price.value(),
		Ask:       d.Ask1Price.value(),
		Volume24h: d.Volume24h.value(),
		Change24h: d.Price24hPcnt.value() * 100,
		Timestamp: time.Now(),
	}
	if err := validateTicker(t); err != nil {
		return nil, err
	}
	return t, nil
}
