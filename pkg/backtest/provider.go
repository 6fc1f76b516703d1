// Package backtest reuses the live decision core — Provider Registry
// through Decision Journal — against a simulated MarketDataProvider that
// replays a historical candle series, per spec.md's non-goal that a
// backtesting engine is a separate collaborator layered on the same core,
// not a parallel implementation of it.
package backtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/market"
)

// syntheticSpreadFraction synthesizes a bid/ask/depth spread around a
// candle's close, since historical OHLCV data carries no order book.
const syntheticSpreadFraction = "0.0005"

// ReplayProvider implements provider.Provider by stepping through a fixed
// historical candle series per configured pair, one candle at a time.
// Grounded in shape on internal/provider (the Provider contract) with its
// live exchange call replaced by an in-memory cursor, so the same
// Assembler/Pool/Combiner/Guard/Sizer pipeline the live orchestrator uses
// runs unmodified against historical data.
type ReplayProvider struct {
	id string

	mu     sync.Mutex
	series map[market.Pair][]market.Candle
	cursor map[market.Pair]int // index of the latest candle considered "closed"
}

// NewReplayProvider builds a ReplayProvider over series (oldest candle
// first per pair). The cursor for every pair starts at its first candle.
func NewReplayProvider(id string, series map[market.Pair][]market.Candle) *ReplayProvider {
	cursor := make(map[market.Pair]int, len(series))
	for pair := range series {
		cursor[pair] = 0
	}
	return &ReplayProvider{id: id, series: series, cursor: cursor}
}

func (p *ReplayProvider) ID() string { return p.id }

// Advance moves pair's replay cursor to the next candle. It reports false
// once the series is exhausted, at which point the caller should stop
// triggering cycles for that pair.
func (p *ReplayProvider) Advance(pair market.Pair) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.cursor[pair]
	if !ok {
		return false
	}
	if cur+1 >= len(p.series[pair]) {
		return false
	}
	p.cursor[pair] = cur + 1
	return true
}

// CurrentCloseTime returns the candle the cursor is presently on; its close
// time is the natural fire_time for the cycle about to replay it.
func (p *ReplayProvider) CurrentCloseTime(pair market.Pair) (market.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	series, ok := p.series[pair]
	if !ok {
		return market.Candle{}, fmt.Errorf("backtest: no replay series configured for %s", pair)
	}
	return series[p.cursor[pair]], nil
}

// window returns the lookback candles ending at (and including) the
// cursor, matching internal/market.Assembler's CandleLookback request.
func (p *ReplayProvider) window(pair market.Pair, limit int) ([]market.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	all, ok := p.series[pair]
	if !ok {
		return nil, fmt.Errorf("backtest: no replay series configured for %s", pair)
	}
	cur := p.cursor[pair]
	end := cur + 1
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]market.Candle, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (p *ReplayProvider) FetchCandles(_ context.Context, pair market.Pair, limit int) ([]market.Candle, error) {
	return p.window(pair, limit)
}

func (p *ReplayProvider) FetchTicker(_ context.Context, pair market.Pair) (market.Ticker, error) {
	window, err := p.window(pair, 1)
	if err != nil {
		return market.Ticker{}, err
	}
	last := window[len(window)-1]
	return market.Ticker{
		Last:      last.Close,
		Bid:       last.Close,
		Ask:       last.Close,
		Volume24h: last.Volume,
		Timestamp: last.CloseTime,
	}, nil
}

func (p *ReplayProvider) FetchDepth(_ context.Context, pair market.Pair, levels int) (market.DepthLevels, error) {
	window, err := p.window(pair, 1)
	if err != nil {
		return market.DepthLevels{}, err
	}
	last := window[len(window)-1]
	if levels <= 0 {
		levels = 1
	}

	spreadFraction, _ := decimal.NewFromString(syntheticSpreadFraction)
	spread := last.Close.Mul(spreadFraction)
	size := last.Volume.Div(decimal.NewFromInt(int64(levels)))
	if size.IsZero() {
		size = decimal.NewFromInt(1)
	}

	bids := make([]market.DepthLevel, levels)
	asks := make([]market.DepthLevel, levels)
	for i := 0; i < levels; i++ {
		step := spread.Mul(decimal.NewFromInt(int64(i))).Div(decimal.NewFromInt(int64(levels)))
		bids[i] = market.DepthLevel{Price: last.Close.Sub(spread).Sub(step), Size: size}
		asks[i] = market.DepthLevel{Price: last.Close.Add(spread).Add(step), Size: size}
	}
	return market.DepthLevels{Bids: bids, Asks: asks, Timestamp: last.CloseTime}, nil
}

// FetchDerivatives is always absent: historical OHLCV candle series carry
// no funding/open-interest facts, so every replayed snapshot is at best
// QualityPartial, same as a live run against a spot-only provider.
func (p *ReplayProvider) FetchDerivatives(_ context.Context, _ market.Pair) (*market.DerivativesFact, error) {
	return nil, nil
}
