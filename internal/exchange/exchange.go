package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinspread/internal/config"
	"coinspread/pkg/model"
)

var (
	// ErrUnsupportedSymbol is returned for pairs outside the configured universe.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	// ErrCircuitOpen is returned while an exchange is cooling down after
	// repeated failures.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrInvalidTicker is returned when a venue responds with unusable numbers.
	ErrInvalidTicker = errors.New("invalid ticker data")
	// ErrBlocked is returned on 403/451 responses; the venue is disabled
	// since retrying is pointless.
	ErrBlocked = errors.New("request blocked by exchange")
	// ErrRateLimited is returned on 429 responses; retries wait out an extra
	// penalty first.
	ErrRateLimited = errors.New("rate limited by exchange")
)

// Provider fetches a ticker for one symbol from one venue.
type Provider interface {
	Name() string
	FetchTicker(ctx context.Context, symbol string) (*model.Ticker, error)
	State() model.ExchangeState
}

// FormatSymbol converts the canonical "BTC/USDT" form into a venue's native
// pair notation, e.g. sep "" -> BTCUSDT, "-" -> BTC-USDT, "_" -> BTC_USDT.
func FormatSymbol(symbol, sep string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", sep))
}

// ForConfig builds providers for the venues named in the trading config.
// Unknown venue names are an error so that typos fail fast.
func ForConfig(cfg *config.Config) ([]Provider, error) {
	client := newHTTPClient(cfg.API.Timeout())

	providers := make([]Provider, 0, len(cfg.Trading.Exchanges))
	for _, name := range cfg.Trading.Exchanges {
		var p Provider
		switch strings.ToLower(name) {
		case "binance":
			p = NewBinance(client, cfg.API)
		case "okx":
			p = NewOKX(client, cfg.API)
		case "kucoin":
			p = NewKuCoin(client, cfg.API)
		case "gate":
			p = NewGate(client, cfg.API)
		case "bybit":
			p = NewBybit(client, cfg.API)
		default:
			return nil, fmt.Errorf("unknown exchange %q", name)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// validateTicker enforces basic sanity on venue numbers: all prices must be
// positive, a slightly inverted book is repaired by swapping bid/ask, and a
// deeply inverted one (ask below 95% of bid) is rejected as corrupt.
func validateTicker(t *model.Ticker) error {
	if t.Price <= 0 || t.Bid <= 0 || t.Ask <= 0 {
		return fmt.Errorf("%w: price=%g bid=%g ask=%g", ErrInvalidTicker, t.Price, t.Bid, t.Ask)
	}
	if t.Ask < t.Bid*0.95 {
		return fmt.Errorf("%w: suspicious spread bid=%g ask=%g", ErrInvalidTicker, t.Bid, t.Ask)
	}
	if t.Ask < t.Bid {
		t.Bid, t.Ask = t.Ask, t.Bid
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	return nil
}
