package guard

import (
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// Chain runs an ordered list of guards; the first non-PASS outcome
// short-circuits evaluation, per spec.md §4.5.
type Chain struct {
	guards []Guard
}

func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

func (c *Chain) Evaluate(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome {
	current := pass(d)
	for _, g := range c.guards {
		out := g.Check(current.Signal, p, snap)
		if out.Result != ResultPass {
			return out
		}
		current = out
	}
	return current
}
