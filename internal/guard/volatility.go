package guard

import (
	"fmt"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
	"github.com/marketcycle/orchestrator/internal/volatility"
)

// VolatilityGuard downgrades to HOLD when realized volatility exceeds an
// upper bound, to stop opening positions during turmoil. Consumes the same
// volatility.Result the Position Sizer computes — never recomputed
// independently (spec.md §9 Open Question 1).
type VolatilityGuard struct {
	UpperBoundPct float64
}

func NewVolatilityGuard(upperBoundPct float64) *VolatilityGuard {
	return &VolatilityGuard{UpperBoundPct: upperBoundPct}
}

func (g *VolatilityGuard) ID() string { return "VolatilityGuard" }

// CheckWithVolatility is the real entry point; Check (to satisfy the Guard
// interface) recomputes volatility from the snapshot when used standalone.
func (g *VolatilityGuard) CheckWithVolatility(d decision.Decision, vol volatility.Result) Outcome {
	if d.Signal == "HOLD" {
		return pass(d)
	}
	if vol.Pct > g.UpperBoundPct {
		return downgrade(g.ID(), fmt.Sprintf("realized volatility %.4f%% exceeds upper bound %.4f%%", vol.Pct, g.UpperBoundPct), d)
	}
	return pass(d)
}

func (g *VolatilityGuard) Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	vol, err := volatility.FromSnapshot(snap)
	if err != nil {
		return pass(d)
	}
	return g.CheckWithVolatility(d, vol)
}
