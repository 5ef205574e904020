package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinspread/internal/config"
	"coinspread/pkg/model"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		TimeoutSeconds:    5,
		RetryAttempts:     1,
		RetryDelaySeconds: 0,
		MaxConcurrency:    5,
	}
}

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFormatSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", FormatSymbol("BTC/USDT", ""))
	assert.Equal(t, "BTC-USDT", FormatSymbol("btc/usdt", "-"))
	assert.Equal(t, "BTC_USDT", FormatSymbol("BTC/USDT", "_"))
}

func TestValidateTicker(t *testing.T) {
	t.Run("valid passes", func(t *testing.T) {
		tk := &model.Ticker{Price: 100, Bid: 99, Ask: 101}
		require.NoError(t, validateTicker(tk))
		assert.False(t, tk.Timestamp.IsZero())
	})

	t.Run("non-positive rejected", func(t *testing.T) {
		err := validateTicker(&model.Ticker{Price: 100, Bid: 0, Ask: 101})
		assert.ErrorIs(t, err, ErrInvalidTicker)
	})

	t.Run("slightly inverted book swapped", func(t *testing.T) {
		tk := &model.Ticker{Price: 100, Bid: 100.5, Ask: 100}
		require.NoError(t, validateTicker(tk))
		assert.InDelta(t, 100, tk.Bid, 1e-9)
		assert.InDelta(t, 100.5, tk.Ask, 1e-9)
	})

	t.Run("deeply inverted rejected", func(t *testing.T) {
		err := validateTicker(&model.Ticker{Price: 100, Bid: 100, Ask: 90})
		assert.ErrorIs(t, err, ErrInvalidTicker)
	})
}

func TestFlexFloat(t *testing.T) {
	var payload struct {
		Quoted  flexFloat `json:"quoted"`
		Numeric flexFloat `json:"numeric"`
		Empty   flexFloat `json:"empty"`
		Null    flexFloat `json:"null"`
	}
	data := `{"quoted":"50000.5","numeric":1.25,"empty":"","null":null}`
	require.NoError(t, json.Unmarshal([]byte(data), &payload))

	assert.InDelta(t, 50000.5, payload.Quoted.value(), 1e-9)
	assert.InDelta(t, 1.25, payload.Numeric.value(), 1e-9)
	assert.Zero(t, payload.Empty.value())
	assert.Zero(t, payload.Null.value())
}

func TestBinanceFetchTicker(t *testing.T) {
	srv := serve(t, `{"lastPrice":"50000.1","bidPrice":"49999.5","askPrice":"50001.2","volume":"1234.5","priceChangePercent":"2.5"}`)

	b := NewBinance(srv.Client(), testAPIConfig())
	b.baseURLs = []string{srv.URL}

	tk, err := b.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "Binance", tk.Exchange)
	assert.Equal(t, "BTC/USDT", tk.Symbol)
	assert.InDelta(t, 50000.1, tk.Price, 1e-9)
	assert.InDelta(t, 49999.5, tk.Bid, 1e-9)
	assert.InDelta(t, 50001.2, tk.Ask, 1e-9)
	assert.InDelta(t, 2.5, tk.Change24h, 1e-9)
}

func TestOKXFetchTicker(t *testing.T) {
	srv := serve(t, `{"data":[{"last":"100","bidPx":"99","askPx":"101","vol24h":"5000","open24h":"80"}]}`)

	o := NewOKX(srv.Client(), testAPIConfig())
	o.baseURLs = []string{srv.URL}

	tk, err := o.FetchTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "OKX", tk.Exchange)
	assert.InDelta(t, 25, tk.Change24h, 1e-9) // (100-80)/80*100
}

func TestOKXEmptyData(t *testing.T) {
	srv := serve(t, `{"data":[]}`)

	o := NewOKX(srv.Client(), testAPIConfig())
	o.baseURLs = []string{srv.URL}

	_, err := o.FetchTicker(context.Background(), "ETH/USDT")
	assert.ErrorIs(t, err, ErrInvalidTicker)
}

func TestKuCoinFetchTicker(t *testing.T) {
	srv := serve(t, `{"data":{"price":"100","bestBid":"99.5","bestAsk":"100.5","size":"42"}}`)

	k := NewKuCoin(srv.Client(), testAPIConfig())
	k.baseURLs = []string{srv.URL}

	tk, err := k.FetchTicker(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	assert.Equal(t, "KuCoin", tk.Exchange)
	assert.InDelta(t, 99.5, tk.Bid, 1e-9)
	assert.Zero(t, tk.Change24h)
}

func TestGateFetchTicker(t *testing.T) {
	srv := serve(t, `[{"last":"2.5","highest_bid":"2.49","lowest_ask":"2.51","base_volume":"99000","change_percentage":"-1.2"}]`)

	g := NewGate(srv.Client(), testAPIConfig())
	g.baseURLs = []string{srv.URL}

	tk, err := g.FetchTicker(context.Background(), "ADA/USDT")
	require.NoError(t, err)
	assert.Equal(t, "Gate.io", tk.Exchange)
	assert.InDelta(t, -1.2, tk.Change24h, 1e-9)
}

func TestBybitFetchTicker(t *testing.T) {
	srv := serve(t, `{"result":{"list":[{"lastPrice":"600","bid1Price":"599","ask1Price":"601","volume24h":"777","price24hPcnt":"0.015"}]}}`)

	b := NewBybit(srv.Client(), testAPIConfig())
	b.baseURLs = []string{srv.URL}

	tk, err := b.FetchTicker(context.Background(), "BNB/USDT")
	require.NoError(t, err)
	assert.Equal(t, "Bybit", tk.Exchange)
	assert.InDelta(t, 1.5, tk.Change24h, 1e-9) // fraction converted to percent
}

func TestVenueBlockedDisablesExchange(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	b := NewBinance(srv.Client(), testAPIConfig())
	b.baseURLs = []string{srv.URL}

	_, err := b.FetchTicker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, ErrBlocked)

	state := b.State()
	assert.Equal(t, StatusDisabled, state.Status)
	assert.True(t, state.CircuitOpen)

	// The venue stays out of rotation; no further request goes out.
	_, err = b.FetchTicker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, hits)
}

func TestVenueRateLimitedPenalty(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"lastPrice":"100","bidPrice":"99","askPrice":"101","volume":"1","priceChangePercent":"0"}`))
	}))
	t.Cleanup(srv.Close)

	api := testAPIConfig()
	api.RetryAttempts = 2

	b := NewBinance(srv.Client(), api)
	b.baseURLs = []string{srv.URL}
	b.limiter.SetLimit(1000)
	b.ratePenalty = 50 * time.Millisecond

	start := time.Now()
	tk, err := b.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 100, tk.Price, 1e-9)
	assert.Equal(t, 2, hits)
	// The retry waited out the penalty on top of the backoff schedule.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestVenueRateLimits(t *testing.T) {
	client := &http.Client{}
	api := testAPIConfig()

	assert.InDelta(t, binanceRate, float64(NewBinance(client, api).limiter.Limit()), 1e-9)
	assert.InDelta(t, okxRate, float64(NewOKX(client, api).limiter.Limit()), 1e-9)
	assert.InDelta(t, kucoinRate, float64(NewKuCoin(client, api).limiter.Limit()), 1e-9)
	assert.InDelta(t, gateRate, float64(NewGate(client, api).limiter.Limit()), 1e-9)
	assert.InDelta(t, bybitRate, float64(NewBybit(client, api).limiter.Limit()), 1e-9)
}

func TestVenueBackupURL(t *testing.T) {
	var primaryHits int
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(primary.Close)
	backup := serve(t, `{"lastPrice":"100","bidPrice":"99","askPrice":"101","volume":"1","priceChangePercent":"0"}`)

	b := NewBinance(primary.Client(), testAPIConfig())
	b.baseURLs = []string{primary.URL, backup.URL}
	b.limiter.SetLimit(1000)

	tk, err := b.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 100, tk.Price, 1e-9)
	assert.Equal(t, 1, primaryHits)
}

func TestForConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.Exchanges = []string{"binance", "okx", "kucoin", "gate", "bybit"}

	providers, err := ForConfig(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 5)

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Binance", "OKX", "KuCoin", "Gate.io", "Bybit"}, names)
}

func TestForConfigUnknownExchange(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.Exchanges = []string{"binance", "mtgox"}

	_, err := ForConfig(cfg)
	assert.Error(t, err)
}
