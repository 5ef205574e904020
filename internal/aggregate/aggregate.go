// Package aggregate pulls USD reference quotes from market-data aggregators
// (CoinCap, CoinPaprika, CoinGecko). These complement the direct exchange
// tickers: they carry market cap and survive venue outages.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"coinspread/internal/logger"
	"coinspread/pkg/model"
)

// ErrNoQuotes is returned when every source failed for a symbol.
var ErrNoQuotes = errors.New("no aggregator quotes available")

// ErrUnknownSymbol is returned for symbols without a coin-id mapping.
var ErrUnknownSymbol = errors.New("no coin id mapping for symbol")

// Source is one aggregator API. Lower priority numbers win ties.
type Source interface {
	Name() string
	Priority() int
	FetchQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// coinIDs maps canonical symbols to each aggregator's asset identifier.
var coinIDs = map[string]map[string]string{
	"BTC/USDT": {"coincap": "bitcoin", "coinpaprika": "btc-bitcoin", "coingecko": "bitcoin"},
	"ETH/USDT": {"coincap": "ethereum", "coinpaprika": "eth-ethereum", "coingecko": "ethereum"},
	"BNB/USDT": {"coincap": "binance-coin", "coinpaprika": "bnb-binance-coin", "coingecko": "binancecoin"},
	"ADA/USDT": {"coincap": "cardano", "coinpaprika": "ada-cardano", "coingecko": "cardano"},
	"SOL/USDT": {"coincap": "solana", "coinpaprika": "sol-solana", "coingecko": "solana"},
}

func coinID(source, symbol string) (string, error) {
	ids, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	id, ok := ids[source]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s id", ErrUnknownSymbol, symbol, source)
	}
	return id, nil
}

// SupportedSymbols lists the symbols with aggregator mappings.
func SupportedSymbols() []string {
	symbols := make([]string, 0, len(coinIDs))
	for s := range coinIDs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Aggregator fans a symbol out to all sources.
type Aggregator struct {
	sources []Source
}

// New creates an aggregator over the default three sources.
func New(client *http.Client) *Aggregator {
	return &Aggregator{sources: []Source{
		NewCoinCap(client),
		NewCoinPaprika(client),
		NewCoinGecko(client),
	}}
}

// NewWithSources creates an aggregator over a custom source set.
func NewWithSources(sources ...Source) *Aggregator {
	return &Aggregator{sources: sources}
}

// Quotes fetches symbol from every source concurrently and returns the
// successful results ordered by source priority. Individual source failures
// are logged, not fatal; only a full wipeout is an error.
func (a *Aggregator) Quotes(ctx context.Context, symbol string) ([]model.Quote, error) {
	if _, ok := coinIDs[strings.ToUpper(symbol)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	var (
		mu     sync.Mutex
		quotes []model.Quote
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, src := range a.sources {
		g.Go(func() error {
			q, err := src.FetchQuote(ctx, symbol)
			if err != nil {
				logger.Warn().
					Str("source", src.Name()).
					Str("symbol", symbol).
					Err(err).
					Msg("aggregator source failed")
				return nil
			}
			mu.Lock()
			quotes = append(quotes, *q)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuotes, symbol)
	}

	prio := make(map[string]int, len(a.sources))
	for _, src := range a.sources {
		prio[src.Name()] = src.Priority()
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return prio[quotes[i].Source] < prio[quotes[j].Source]
	})
	return quotes, nil
}

// BestQuote returns the highest-priority quote that answered.
func (a *Aggregator) BestQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	quotes, err := a.Quotes(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &quotes[0], nil
}

// parseFloat is tolerant of the string-encoded numbers aggregators return;
// unparseable input yields the fallback.
func parseFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}
