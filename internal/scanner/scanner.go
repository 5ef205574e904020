// Package scanner drives the periodic market scan: it fans requests out
// across exchange providers, validates and caches the results, and derives
// opportunities, overview numbers and the profit trend from each snapshot.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coinspread/internal/cache"
	"coinspread/internal/exchange"
	"coinspread/internal/logger"
	"coinspread/internal/market"
	"coinspread/internal/monitor"
	"coinspread/pkg/model"
)

// ErrNoData is returned when no exchange produced a usable ticker.
var ErrNoData = errors.New("no market data available")

// Snapshot is the validated result of one full scan.
type Snapshot struct {
	Tickers   map[string][]model.Ticker `json:"tickers"` // symbol -> per-exchange tickers
	ScannedAt time.Time                 `json:"scanned_at"`
}

// Scanner coordinates providers, cache and scan history.
type Scanner struct {
	providers   []exchange.Provider
	store       cache.Cache
	monitor     *monitor.Monitor
	symbols     []string
	ttl         time.Duration
	concurrency int
	maxHistory  int

	mu       sync.RWMutex
	snapshot *Snapshot
	trend    []model.TrendPoint
}

// Options configures a Scanner.
type Options struct {
	Symbols     []string
	TTL         time.Duration
	Concurrency int
	MaxHistory  int
}

// New creates a scanner over the given providers.
func New(providers []exchange.Provider, store cache.Cache, mon *monitor.Monitor, opts Options) *Scanner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxHistory < 1 {
		opts.MaxHistory = 1000
	}
	return &Scanner{
		providers:   providers,
		store:       store,
		monitor:     mon,
		symbols:     opts.Symbols,
		ttl:         opts.TTL,
		concurrency: opts.Concurrency,
		maxHistory:  opts.MaxHistory,
	}
}

// Symbols returns the configured symbol universe.
func (s *Scanner) Symbols() []string {
	return append([]string{}, s.symbols...)
}

// States reports the breaker status of every provider.
func (s *Scanner) States() []model.ExchangeState {
	states := make([]model.ExchangeState, 0, len(s.providers))
	for _, p := range s.providers {
		states = append(states, p.State())
	}
	return states
}

func (s *Scanner) supported(symbol string) bool {
	for _, sym := range s.symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}

// Tickers returns validated tickers for one symbol, served from cache when
// fresh. Provider failures are logged and skipped; only a total miss is an
// error.
func (s *Scanner) Tickers(ctx context.Context, symbol string) ([]model.Ticker, error) {
	if !s.supported(symbol) {
		return nil, fmt.Errorf("%w: %s", exchange.ErrUnsupportedSymbol, symbol)
	}

	key := "tickers:" + symbol
	var cached []model.Ticker
	if err := s.store.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	tickers := s.fetchSymbol(ctx, symbol)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	if err := s.store.Set(ctx, key, tickers, s.ttl); err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache tickers")
	}
	return tickers, nil
}

func (s *Scanner) fetchSymbol(ctx context.Context, symbol string) []model.Ticker {
	var (
		mu      sync.Mutex
		tickers []model.Ticker
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range s.providers {
		g.Go(func() error {
			start := time.Now()
			t, err := p.FetchTicker(ctx, symbol)
			s.monitor.Record("fetch_ticker:"+p.Name(), time.Since(start), err)
			if err != nil {
				if !errors.Is(err, exchange.ErrCircuitOpen) {
					logger.Warn().
						Str("exchange", p.Name()).
						Str("symbol", symbol).
						Err(err).
						Msg("ticker fetch failed")
				}
				return nil
			}
			mu.Lock()
			tickers = append(tickers, *t)
			mu.Unlock()
			return nil
		})
	}
	// Errors are swallowed per provider; Wait only propagates ctx errors.
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("symbol", symbol).Msg("scan group aborted")
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].Exchange < tickers[j].Exchange
	})
	return tickers
}

// Scan performs one full pass over all symbols and records the snapshot and
// a trend point.
func (s *Scanner) Scan(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{
		Tickers:   make(map[string][]model.Ticker, len(s.symbols)),
		ScannedAt: start,
	}

	for _, symbol := range s.symbols {
		tickers, err := s.Tickers(ctx, symbol)
		if err != nil {
			if errors.Is(err, ErrNoData) {
				logger.Warn().Str("symbol", symbol).Msg("symbol scan produced no data")
				continue
			}
			return nil, err
		}
		snap.Tickers[symbol] = tickers
	}
	s.monitor.Record("scan", time.Since(start), nil)

	if len(snap.Tickers) == 0 {
		return nil, ErrNoData
	}

	s.mu.Lock()
	s.snapshot = snap
	s.recordTrendLocked(snap)
	s.mu.Unlock()

	logger.Info().
		Int("symbols", len(snap.Tickers)).
		Dur("elapsed", time.Since(start)).
		Msg("market scan complete")
	return snap, nil
}

// recordTrendLocked appends the best profit across all symbols in the
// snapshot. Caller holds s.mu.
func (s *Scanner) recordTrendLocked(snap *Snapshot) {
	point := model.TrendPoint{Timestamp: snap.ScannedAt}
	for _, tickers := range snap.Tickers {
		ops := market.Opportunities(tickers)
		point.Opportunities += len(ops)
		if len(ops) > 0 && ops[0].ProfitPct > point.BestProfitPct {
			point.BestProfitPct = ops[0].ProfitPct
		}
	}
	s.trend = append(s.trend, point)
	if len(s.trend) > s.maxHistory {
		s.trend = s.trend[1:]
	}
}

// Run scans immediately and then on every tick until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Scan(ctx); err != nil {
		logger.Error().Err(err).Msg("initial scan failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				logger.Error().Err(err).Msg("scan failed")
			}
		case <-ctx.Done():
			logger.Info().Msg("scanner stopped")
			return
		}
	}
}

// Opportunities returns filtered arbitrage candidates for one symbol, or for
// every configured symbol when symbol is empty.
func (s *Scanner) Opportunities(ctx context.Context, symbol string, f market.Filter) ([]model.Opportunity, error) {
	symbols := s.symbols
	if symbol != "" {
		symbols = []string{symbol}
	}

	var all []model.Opportunity
	for _, sym := range symbols {
		tickers, err := s.Tickers(ctx, sym)
		if err != nil {
			if symbol == "" && errors.Is(err, ErrNoData) {
				continue
			}
			return nil, err
		}
		all = append(all, market.Opportunities(tickers)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ProfitPct > all[j].ProfitPct
	})
	return f.Apply(all), nil
}

// Snapshot returns the latest scan result, or nil before the first scan.
func (s *Scanner) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Trend returns trend points recorded within the window.
func (s *Scanner) Trend(window time.Duration) []model.TrendPoint {
	cutoff := time.Now().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrendPoint, 0, len(s.trend))
	for _, p := range s.trend {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Overview derives market-wide numbers from the latest snapshot.
func (s *Scanner) Overview() (*model.Overview, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, ErrNoData
	}

	ov := &model.Overview{
		Symbols:     len(snap.Tickers),
		PriceMatrix: make(map[string]map[string]float64, len(snap.Tickers)),
		ScannedAt:   snap.ScannedAt,
	}

	venues := make(map[string]bool)
	var movers []model.Ticker
	for symbol, tickers := range snap.Tickers {
		row := make(map[string]float64, len(tickers))
		var best *model.Ticker
		for i, t := range tickers {
			row[t.Exchange] = t.Price
			venues[t.Exchange] = true
			ov.TotalVolumeUSD += t.Volume24h * t.Price
			if best == nil || t.Volume24h > best.Volume24h {
				best = &tickers[i]
			}
		}
		ov.PriceMatrix[symbol] = row
		if best != nil {
			movers = append(movers, *best)
		}
	}
	ov.Exchanges = len(venues)

	sort.Slice(movers, func(i, j int) bool {
		return movers[i].Change24h > movers[j].Change24h
	})
	const topN = 3
	for i := 0; i < len(movers) && i < topN; i++ {
		ov.TopGainers = append(ov.TopGainers, movers[i])
	}
	for i := len(movers) - 1; i >= 0 && len(ov.TopLosers) < topN; i-- {
		if movers[i].Change24h < 0 {
			ov.TopLosers = append(ov.TopLosers, movers[i])
		}
	}
	return ov, nil
}
