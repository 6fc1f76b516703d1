package guard

import (
	"fmt"
	"time"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// CooldownGuard vetoes if the same pair was traded within cooldown_interval.
// Boundary per spec.md §8: a trigger at exactly last_trade_time+interval
// passes; one nanosecond earlier vetoes.
type CooldownGuard struct {
	Interval time.Duration
}

func NewCooldownGuard(interval time.Duration) *CooldownGuard {
	return &CooldownGuard{Interval: interval}
}

func (g *CooldownGuard) ID() string { return "CooldownGuard" }

func (g *CooldownGuard) Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	if d.Signal == "HOLD" {
		return pass(d)
	}
	lastNanos, ok := p.LastTradeTime[d.Pair.String()]
	if !ok {
		return pass(d)
	}
	last := time.Unix(0, lastNanos)
	eligibleAt := last.Add(g.Interval)
	if d.Timestamp.Before(eligibleAt) {
		return veto(g.ID(), fmt.Sprintf("pair traded at %s, cooldown until %s", last, eligibleAt), d)
	}
	return pass(d)
}
