// Package volatility computes realized volatility once per cycle from a
// candle window, shared by the VolatilityGuard and the Position Sizer so
// neither recomputes it independently (resolves spec.md §9 Open Question 1).
package volatility

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/market"
)

// Result is the realized volatility computed over one candle window.
type Result struct {
	Pct      float64         // sample standard deviation of log returns, expressed as a percentage
	Interval market.Interval // the candle interval the window was sampled at, for callers who want to annualize
	Samples  int             // number of log returns used (len(closes)-1)
}

// Realized computes the sample standard deviation of log returns over the
// snapshot's candle window. Requires at least 2 candles (1 return); fewer
// is a caller error since a snapshot always carries its full lookback.
func Realized(closes []decimal.Decimal, interval market.Interval) (Result, error) {
	if len(closes) < 2 {
		return Result{}, fmt.Errorf("volatility: need at least 2 candles, got %d", len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, _ := closes[i-1].Float64()
		cur, _ := closes[i].Float64()
		if prev <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) == 0 {
		return Result{}, fmt.Errorf("volatility: no usable returns in candle window")
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}
	stddev := math.Sqrt(variance)

	return Result{Pct: stddev * 100, Interval: interval, Samples: len(returns)}, nil
}

// FromSnapshot is a convenience wrapper computing Realized directly from a
// MarketSnapshot's candle window.
func FromSnapshot(snap market.MarketSnapshot) (Result, error) {
	return Realized(snap.Closes(), snap.Pair.Interval)
}
