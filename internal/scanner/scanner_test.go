package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinspread/internal/cache"
	"coinspread/internal/exchange"
	"coinspread/internal/market"
	"coinspread/internal/monitor"
	"coinspread/pkg/model"
)

type fakeProvider struct {
	name    string
	tickers map[string]model.Ticker
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tickers[symbol]
	if !ok {
		return nil, errors.New("no fixture")
	}
	t.Exchange = f.name
	t.Symbol = symbol
	t.Timestamp = time.Now()
	return &t, nil
}

func (f *fakeProvider) State() model.ExchangeState {
	return model.ExchangeState{Exchange: f.name, Status: exchange.StatusActive}
}

func newTestScanner(t *testing.T, providers ...exchange.Provider) *Scanner {
	t.Helper()
	store := cache.NewMemoryCache(100, time.Hour)
	t.Cleanup(func() { store.Close() })

	return New(providers, store, monitor.New(100), Options{
		Symbols:     []string{"BTC/USDT", "ETH/USDT"},
		TTL:         time.Minute,
		Concurrency: 4,
		MaxHistory:  10,
	})
}

func btcProvider(name string, bid, ask float64) *fakeProvider {
	return &fakeProvider{
		name: name,
		tickers: map[string]model.Ticker{
			"BTC/USDT": {Price: (bid + ask) / 2, Bid: bid, Ask: ask, Volume24h: 100},
			"ETH/USDT": {Price: 3000, Bid: 2999, Ask: 3001, Volume24h: 50},
		},
	}
}

func TestTickersFanOut(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	tickers, err := s.Tickers(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, tickers, 2)

	// Sorted by exchange name.
	assert.Equal(t, "Binance", tickers[0].Exchange)
	assert.Equal(t, "OKX", tickers[1].Exchange)
}

func TestTickersUnsupportedSymbol(t *testing.T) {
	s := newTestScanner(t, btcProvider("Binance", 50000, 50010))

	_, err := s.Tickers(context.Background(), "DOGE/USDT")
	assert.ErrorIs(t, err, exchange.ErrUnsupportedSymbol)
}

func TestTickersSkipsFailedProvider(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		&fakeProvider{name: "OKX", err: errors.New("down")},
	)

	tickers, err := s.Tickers(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "Binance", tickers[0].Exchange)
}

func TestTickersAllProvidersDown(t *testing.T) {
	s := newTestScanner(t, &fakeProvider{name: "Binance", err: errors.New("down")})

	_, err := s.Tickers(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestTickersServedFromCache(t *testing.T) {
	p := btcProvider("Binance", 50000, 50010)
	s := newTestScanner(t, p)
	ctx := context.Background()

	_, err := s.Tickers(ctx, "BTC/USDT")
	require.NoError(t, err)
	_, err = s.Tickers(ctx, "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
}

func TestScan(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	snap, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Tickers, 2)
	assert.NotNil(t, s.Snapshot())

	trend := s.Trend(time.Hour)
	require.Len(t, trend, 1)
	assert.Greater(t, trend[0].Opportunities, 0)
	assert.Greater(t, trend[0].BestProfitPct, 0.0)
}

func TestOpportunities(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	ops, err := s.Opportunities(context.Background(), "BTC/USDT", market.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	assert.Equal(t, "Binance", ops[0].BuyExchange)
	assert.Equal(t, "OKX", ops[0].SellExchange)
}

func TestOpportunitiesAcrossAllSymbols(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	ops, err := s.Opportunities(context.Background(), "", market.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	// Only the BTC pair has a cross-venue spread in the fixture.
	for _, op := range ops {
		assert.Equal(t, "BTC/USDT", op.Symbol)
	}
}

func TestOverview(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	ov, err := s.Overview()
	require.NoError(t, err)
	assert.Equal(t, 2, ov.Symbols)
	assert.Equal(t, 2, ov.Exchanges)
	assert.Greater(t, ov.TotalVolumeUSD, 0.0)
	assert.Contains(t, ov.PriceMatrix, "BTC/USDT")
	assert.Contains(t, ov.PriceMatrix["BTC/USDT"], "Binance")
}

func TestOverviewBeforeFirstScan(t *testing.T) {
	s := newTestScanner(t, btcProvider("Binance", 50000, 50010))

	_, err := s.Overview()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestStates(t *testing.T) {
	s := newTestScanner(t,
		btcProvider("Binance", 50000, 50010),
		btcProvider("OKX", 50100, 50110),
	)

	states := s.States()
	require.Len(t, states, 2)
	assert.Equal(t, exchange.StatusActive, states[0].Status)
}
