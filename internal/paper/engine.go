// Package paper simulates arbitrage execution without touching real venues.
// Trades walk a buy/transfer/sell lifecycle with realistic fees and a small
// failure probability, and the history is persisted for post-trade analysis.
package paper

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinspread/internal/logger"
	"coinspread/pkg/model"
)

// ErrPositionTooLarge is returned when the requested position exceeds the
// configured cap.
var ErrPositionTooLarge = errors.New("position exceeds configured maximum")

// ErrInvalidPosition is returned for a missing or non-positive position size.
var ErrInvalidPosition = errors.New("position must be positive")

// takerFeePct is the per-leg taker fee by venue, in percent.
var takerFeePct = map[string]float64{
	"Binance": 0.10,
	"OKX":     0.10,
	"KuCoin":  0.10,
	"Gate.io": 0.20,
	"Bybit":   0.10,
}

const defaultFeePct = 0.20

// lifecycle is the order of states a successful trade passes through.
var lifecycle = []model.TradeStatus{
	model.TradeBuying,
	model.TradeTransferring,
	model.TradeSelling,
	model.TradeCompleted,
}

// Engine turns opportunities into simulated trades.
type Engine struct {
	store          *Store
	maxPositionUSD float64
	stepDelay      time.Duration
	failureRate    float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a paper-trading engine persisting into store.
func NewEngine(store *Store, maxPositionUSD float64) *Engine {
	return &Engine{
		store:          store,
		maxPositionUSD: maxPositionUSD,
		stepDelay:      500 * time.Millisecond,
		failureRate:    0.05,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fees returns the round-trip fee for a position split across two venues.
func Fees(buyExchange, sellExchange string, positionUSD float64) float64 {
	buyFee, ok := takerFeePct[buyExchange]
	if !ok {
		buyFee = defaultFeePct
	}
	sellFee, ok := takerFeePct[sellExchange]
	if !ok {
		sellFee = defaultFeePct
	}
	return positionUSD * (buyFee + sellFee) / 100
}

// Execute records a pending trade for the opportunity and advances it through
// its lifecycle in the background. The returned trade is the pending record.
func (e *Engine) Execute(op model.Opportunity, positionUSD float64) (*model.Trade, error) {
	if positionUSD <= 0 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidPosition, positionUSD)
	}
	if positionUSD > e.maxPositionUSD {
		return nil, fmt.Errorf("%w: %g > %g", ErrPositionTooLarge, positionUSD, e.maxPositionUSD)
	}

	fees := Fees(op.BuyExchange, op.SellExchange, positionUSD)
	trade := model.Trade{
		ID:             uuid.NewString(),
		Symbol:         op.Symbol,
		BuyExchange:    op.BuyExchange,
		SellExchange:   op.SellExchange,
		BuyPrice:       op.BuyPrice,
		SellPrice:      op.SellPrice,
		PositionUSD:    positionUSD,
		FeesUSD:        fees,
		ExpectedProfit: positionUSD*op.ProfitPct/100 - fees,
		Status:         model.TradePending,
		CreatedAt:      time.Now(),
	}
	if err := e.store.Save(trade); err != nil {
		return nil, err
	}

	go e.run(trade)
	return &trade, nil
}

func (e *Engine) run(trade model.Trade) {
	for _, status := range lifecycle {
		time.Sleep(e.stepDelay)

		if status != model.TradeCompleted && e.roll() < e.failureRate {
			trade.Status = model.TradeFailed
			now := time.Now()
			trade.CompletedAt = &now
			// A failed leg still pays its fees.
			trade.RealizedProfit = -trade.FeesUSD
			e.persist(trade)
			logger.Warn().
				Str("trade_id", trade.ID).
				Str("stage", string(status)).
				Msg("paper trade failed")
			return
		}

		trade.Status = status
		if status == model.TradeCompleted {
			now := time.Now()
			trade.CompletedAt = &now
			// Realized profit drifts slightly from the estimate: prices move
			// between scan and fill.
			slippage := 1 + (e.roll()-0.5)*0.1
			trade.RealizedProfit = trade.ExpectedProfit * slippage
		}
		e.persist(trade)
	}

	logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Float64("realized_profit", trade.RealizedProfit).
		Msg("paper trade completed")
}

func (e *Engine) roll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) persist(trade model.Trade) {
	if err := e.store.Save(trade); err != nil {
		logger.Error().Err(err).Str("trade_id", trade.ID).Msg("failed to persist trade")
	}
}

// Summary aggregates the recorded trade history.
type Summary struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	InFlight    int     `json:"in_flight"`
	WinRatePct  float64 `json:"win_rate_pct"`
	TotalProfit float64 `json:"total_profit"`
}

// Summarize computes summary stats over the stored history.
func (e *Engine) Summarize() (*Summary, error) {
	trades, err := e.store.List()
	if err != nil {
		return nil, err
	}

	s := &Summary{Total: len(trades)}
	for _, t := range trades {
		switch t.Status {
		case model.TradeCompleted:
			s.Completed++
			s.TotalProfit += t.RealizedProfit
		case model.TradeFailed:
			s.Failed++
			s.TotalProfit += t.RealizedProfit
		default:
			s.InFlight++
		}
	}
	if settled := s.Completed + s.Failed; settled > 0 {
		s.WinRatePct = float64(s.Completed) / float64(settled) * 100
	}
	return s, nil
}

// Trades returns the recorded history, newest first.
func (e *Engine) Trades() ([]model.Trade, error) {
	return e.store.List()
}
