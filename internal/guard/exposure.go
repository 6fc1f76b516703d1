package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// ExposureGuard vetoes if opening this intent would push total open notional
// above the configured cap. Grounded on
// pkg/trader/policy/limits.go's daily-volume/total-exposure decimal checks.
type ExposureGuard struct {
	CapQuote       decimal.Decimal
	EstimatedQuote func(d decision.Decision, p portfolio.State) decimal.Decimal
}

func NewExposureGuard(capQuote decimal.Decimal) *ExposureGuard {
	return &ExposureGuard{CapQuote: capQuote}
}

func (g *ExposureGuard) ID() string { return "ExposureGuard" }

func (g *ExposureGuard) Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	if d.Signal == "HOLD" {
		return pass(d)
	}
	projected := p.OpenRiskExposure
	if g.EstimatedQuote != nil {
		projected = projected.Add(g.EstimatedQuote(d, p))
	}
	if projected.GreaterThan(g.CapQuote) {
		return veto(g.ID(), fmt.Sprintf("projected exposure %s exceeds cap %s", projected, g.CapQuote), d)
	}
	return pass(d)
}
