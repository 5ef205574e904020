package model

import "time"

// Ticker is a validated price snapshot for one symbol on one exchange.
type Ticker struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume24h float64   `json:"volume_24h"`
	Change24h float64   `json:"change_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is a USD price point from an aggregator source (CoinCap, CoinPaprika, ...).
type Quote struct {
	Source    string    `json:"source"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume24h float64   `json:"volume_24h"`
	MarketCap float64   `json:"market_cap"`
	Timestamp time.Time `json:"timestamp"`
}

// Opportunity is a cross-exchange arbitrage candidate: buy at BuyExchange's
// ask, sell at SellExchange's bid.
type Opportunity struct {
	Symbol       string    `json:"symbol"`
	BuyExchange  string    `json:"buy_exchange"`
	SellExchange string    `json:"sell_exchange"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	ProfitAbs    float64   `json:"profit_abs"`
	ProfitPct    float64   `json:"profit_pct"`
	BuyVolume    float64   `json:"buy_volume"`
	SellVolume   float64   `json:"sell_volume"`
	Timestamp    time.Time `json:"timestamp"`
}

// BestQuote summarizes the best executable prices for a symbol across venues.
type BestQuote struct {
	Symbol          string  `json:"symbol"`
	BestBidExchange string  `json:"best_bid_exchange"`
	BestBid         float64 `json:"best_bid"`
	BestAskExchange string  `json:"best_ask_exchange"`
	BestAsk         float64 `json:"best_ask"`
	Spread          float64 `json:"spread"`
	SpreadPct       float64 `json:"spread_pct"`
}

// ExchangeState reports health of a single exchange connection.
type ExchangeState struct {
	Exchange    string     `json:"exchange"`
	Status      string     `json:"status"` // active, error, rate_limited, disabled
	Failures    int        `json:"failures"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	CircuitOpen bool       `json:"circuit_open"`
}

// Overview aggregates market-wide numbers across the last scan.
type Overview struct {
	Symbols        int                           `json:"symbols"`
	Exchanges      int                           `json:"exchanges"`
	TotalVolumeUSD float64                       `json:"total_volume_usd"`
	TopGainers     []Ticker                      `json:"top_gainers"`
	TopLosers      []Ticker                      `json:"top_losers"`
	PriceMatrix    map[string]map[string]float64 `json:"price_matrix"`
	ScannedAt      time.Time                     `json:"scanned_at"`
}

// TrendPoint is one sample of the best available profit at scan time.
type TrendPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	BestProfitPct float64   `json:"best_profit_pct"`
	Opportunities int       `json:"opportunities"`
}

// TradeStatus is the lifecycle state of a simulated trade.
type TradeStatus string

const (
	TradePending      TradeStatus = "pending"
	TradeBuying       TradeStatus = "buying"
	TradeTransferring TradeStatus = "transferring"
	TradeSelling      TradeStatus = "selling"
	TradeCompleted    TradeStatus = "completed"
	TradeFailed       TradeStatus = "failed"
)

// Trade is a simulated (paper) execution of an opportunity.
type Trade struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	BuyExchange    string      `json:"buy_exchange"`
	SellExchange   string      `json:"sell_exchange"`
	BuyPrice       float64     `json:"buy_price"`
	SellPrice      float64     `json:"sell_price"`
	PositionUSD    float64     `json:"position_usd"`
	FeesUSD        float64     `json:"fees_usd"`
	ExpectedProfit float64     `json:"expected_profit"`
	RealizedProfit float64     `json:"realized_profit"`
	Status         TradeStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}
