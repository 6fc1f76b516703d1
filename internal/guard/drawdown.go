package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// DrawdownGuard downgrades to HOLD once drawdown_from_peak reaches the
// configured pause threshold, per spec.md §4.5.
type DrawdownGuard struct {
	PauseThreshold decimal.Decimal // e.g. 0.10 = 10%
}

func NewDrawdownGuard(threshold decimal.Decimal) *DrawdownGuard {
	return &DrawdownGuard{PauseThreshold: threshold}
}

func (g *DrawdownGuard) ID() string { return "DrawdownGuard" }

func (g *DrawdownGuard) Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	if d.Signal == "HOLD" {
		return pass(d)
	}
	if p.DrawdownFromPeak.GreaterThanOrEqual(g.PauseThreshold) {
		return downgrade(g.ID(), fmt.Sprintf("drawdown %s >= pause threshold %s", p.DrawdownFromPeak, g.PauseThreshold), d)
	}
	return pass(d)
}
