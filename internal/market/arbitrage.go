// Package market implements the cross-exchange arbitrage math over validated
// tickers: pairwise opportunity detection, best-quote selection and filtering.
package market

import (
	"sort"
	"strings"
	"time"

	"coinspread/pkg/model"
)

// Opportunities compares every ordered pair of venues for one symbol's
// tickers: buying at one venue's ask and selling at another's bid. Results
// are sorted by profit percentage, best first.
func Opportunities(tickers []model.Ticker) []model.Opportunity {
	if len(tickers) < 2 {
		return nil
	}

	now := time.Now()
	var ops []model.Opportunity
	for i := range tickers {
		for j := range tickers {
			if i == j {
				continue
			}
			buy, sell := tickers[i], tickers[j]
			if buy.Ask <= 0 || sell.Bid <= buy.Ask {
				continue
			}
			profit := sell.Bid - buy.Ask
			ops = append(ops, model.Opportunity{
				Symbol:       buy.Symbol,
				BuyExchange:  buy.Exchange,
				SellExchange: sell.Exchange,
				BuyPrice:     buy.Ask,
				SellPrice:    sell.Bid,
				ProfitAbs:    profit,
				ProfitPct:    profit / buy.Ask * 100,
				BuyVolume:    buy.Volume24h,
				SellVolume:   sell.Volume24h,
				Timestamp:    now,
			})
		}
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].ProfitPct > ops[j].ProfitPct
	})
	return ops
}

// BestQuote picks the venue with the highest bid and the venue with the
// lowest ask. Returns nil for an empty ticker set.
func BestQuote(tickers []model.Ticker) *model.BestQuote {
	if len(tickers) == 0 {
		return nil
	}

	best := &model.BestQuote{
		Symbol:          tickers[0].Symbol,
		BestBidExchange: tickers[0].Exchange,
		BestBid:         tickers[0].Bid,
		BestAskExchange: tickers[0].Exchange,
		BestAsk:         tickers[0].Ask,
	}
	for _, t := range tickers[1:] {
		if t.Bid > best.BestBid {
			best.BestBid = t.Bid
			best.BestBidExchange = t.Exchange
		}
		if t.Ask < best.BestAsk {
			best.BestAsk = t.Ask
			best.BestAskExchange = t.Exchange
		}
	}
	best.Spread = best.BestAsk - best.BestBid
	if best.BestBid > 0 {
		best.SpreadPct = best.Spread / best.BestBid * 100
	}
	return best
}

// Filter narrows an opportunity list. Zero values leave a dimension
// unconstrained; exchange and symbol matching is case-insensitive and an
// opportunity must have both legs on allowed exchanges.
type Filter struct {
	MinProfitPct float64
	Symbols      []string
	Exchanges    []string
	Limit        int
}

// Apply returns the opportunities passing every constraint, preserving order.
func (f Filter) Apply(ops []model.Opportunity) []model.Opportunity {
	symbols := toSet(f.Symbols)
	exchanges := toSet(f.Exchanges)

	out := make([]model.Opportunity, 0, len(ops))
	for _, op := range ops {
		if op.ProfitPct < f.MinProfitPct {
			continue
		}
		if len(symbols) > 0 && !symbols[strings.ToUpper(op.Symbol)] {
			continue
		}
		if len(exchanges) > 0 &&
			(!exchanges[strings.ToLower(op.BuyExchange)] || !exchanges[strings.ToLower(op.SellExchange)]) {
			continue
		}
		out = append(out, op)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToUpper(v)] = true
		set[strings.ToLower(v)] = true
	}
	return set
}
