package guard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
	"github.com/marketcycle/orchestrator/internal/volatility"
)

func buyDecision(pair market.Pair, ts time.Time) decision.Decision {
	return decision.Decision{Pair: pair, Timestamp: ts, Signal: analyst.SignalBuy, Confidence: 75}
}

func testSnapshot() market.MarketSnapshot {
	now := time.Now()
	return market.MarketSnapshot{
		Pair: market.Pair{Base: "BTC", Quote: "USDT", Interval: market.Interval1h},
		Ticker: market.Ticker{Last: decimal.NewFromInt(100), Bid: decimal.NewFromInt(99), Ask: decimal.NewFromInt(101), Timestamp: now},
	}
}

func TestChain_AllPass(t *testing.T) {
	chain := NewChain(
		NewExposureGuard(decimal.NewFromInt(100000)),
		NewConcentrationGuard(decimal.NewFromFloat(0.5)),
	)
	d := buyDecision(testSnapshot().Pair, time.Now())
	out := chain.Evaluate(d, portfolio.State{EquityTotal: decimal.NewFromInt(10000)}, testSnapshot())
	assert.Equal(t, ResultPass, out.Result)
}

func TestChain_ShortCircuitsOnFirstVeto(t *testing.T) {
	chain := NewChain(
		NewCooldownGuard(60*time.Second),
		NewExposureGuard(decimal.Zero), // would also veto, but should never run
	)
	now := time.Now()
	d := buyDecision(testSnapshot().Pair, now)
	p := portfolio.State{LastTradeTime: map[string]int64{"BTC/USDT": now.Add(-30 * time.Second).UnixNano()}}

	out := chain.Evaluate(d, p, testSnapshot())
	assert.Equal(t, ResultVeto, out.Result)
	assert.Equal(t, "CooldownGuard", out.By)
}

// Scenario 5: Cooldown veto.
func TestCooldownGuard_VetoesWithinWindow(t *testing.T) {
	g := NewCooldownGuard(60 * time.Second)
	now := time.Now()
	d := buyDecision(testSnapshot().Pair, now)
	p := portfolio.State{LastTradeTime: map[string]int64{"BTC/USDT": now.Add(-30 * time.Second).UnixNano()}}

	out := g.Check(d, p, testSnapshot())
	assert.Equal(t, ResultVeto, out.Result)
}

func TestCooldownGuard_BoundaryPassesAtExactInterval(t *testing.T) {
	g := NewCooldownGuard(60 * time.Second)
	last := time.Now().Add(-60 * time.Second)
	triggerAt := last.Add(60 * time.Second)
	d := buyDecision(testSnapshot().Pair, triggerAt)
	p := portfolio.State{LastTradeTime: map[string]int64{"BTC/USDT": last.UnixNano()}}

	out := g.Check(d, p, testSnapshot())
	assert.Equal(t, ResultPass, out.Result)
}

func TestCooldownGuard_BoundaryVetoesOneNanosecondEarlier(t *testing.T) {
	g := NewCooldownGuard(60 * time.Second)
	last := time.Now().Add(-60 * time.Second)
	triggerAt := last.Add(60*time.Second - time.Nanosecond)
	d := buyDecision(testSnapshot().Pair, triggerAt)
	p := portfolio.State{LastTradeTime: map[string]int64{"BTC/USDT": last.UnixNano()}}

	out := g.Check(d, p, testSnapshot())
	assert.Equal(t, ResultVeto, out.Result)
}

// Scenario 6: Drawdown downgrade.
func TestDrawdownGuard_DowngradesAtThreshold(t *testing.T) {
	g := NewDrawdownGuard(decimal.NewFromFloat(0.10))
	d := buyDecision(testSnapshot().Pair, time.Now())
	p := portfolio.State{DrawdownFromPeak: decimal.NewFromFloat(0.12)}

	out := g.Check(d, p, testSnapshot())
	require.Equal(t, ResultDowngrade, out.Result)
	assert.Equal(t, analyst.SignalHold, out.Signal.Signal)
}

func TestExposureGuard_VetoesOverCap(t *testing.T) {
	g := &ExposureGuard{
		CapQuote:       decimal.NewFromInt(1000),
		EstimatedQuote: func(d decision.Decision, p portfolio.State) decimal.Decimal { return decimal.NewFromInt(2000) },
	}
	d := buyDecision(testSnapshot().Pair, time.Now())
	out := g.Check(d, portfolio.State{}, testSnapshot())
	assert.Equal(t, ResultVeto, out.Result)
}

func TestVolatilityGuard_DowngradesOnHighVolatility(t *testing.T) {
	g := NewVolatilityGuard(5.0)
	d := buyDecision(testSnapshot().Pair, time.Now())
	out := g.CheckWithVolatility(d, volatility.Result{Pct: 10.0})
	assert.Equal(t, ResultDowngrade, out.Result)
}
