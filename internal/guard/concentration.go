package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// ConcentrationGuard vetoes if the base asset's share of portfolio equity
// would exceed a per-asset cap. Grounded on
// pkg/trader/policy/limits.go's concentration-percentage check.
type ConcentrationGuard struct {
	PerAssetCapPct decimal.Decimal // e.g. 0.25 = 25%
}

func NewConcentrationGuard(capPct decimal.Decimal) *ConcentrationGuard {
	return &ConcentrationGuard{PerAssetCapPct: capPct}
}

func (g *ConcentrationGuard) ID() string { return "ConcentrationGuard" }

func (g *ConcentrationGuard) Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	if d.Signal == "HOLD" {
		return pass(d)
	}
	if p.EquityTotal.IsZero() {
		return pass(d)
	}
	pos, ok := p.Positions[d.Pair.Base]
	if !ok {
		return pass(d)
	}
	value := pos.Qty.Mul(snap.Ticker.Last).Abs()
	share := value.Div(p.EquityTotal)
	if share.GreaterThan(g.PerAssetCapPct) {
		return veto(g.ID(), fmt.Sprintf("%s share of equity %s exceeds cap %s", d.Pair.Base, share, g.PerAssetCapPct), d)
	}
	return pass(d)
}
