// Package guard implements the ordered portfolio/risk gate that may veto or
// downgrade a CombinedDecision before it is sized into a TradeIntent (C5).
package guard

import (
	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// Result is one guard's verdict.
type Result string

const (
	ResultPass     Result = "PASS"
	ResultVeto     Result = "VETO"
	ResultDowngrade Result = "DOWNGRADE"
)

// Outcome is the chain's short-circuited verdict, recorded on the
// JournalRecord's guard_outcome field regardless of result.
type Outcome struct {
	Result  Result
	By      string // guard ID that produced a non-PASS result, "" for PASS
	Reason  string
	Signal  decision.Decision // possibly downgraded (signal forced to HOLD)
}

// Guard observes a decision against portfolio and market state and returns
// PASS, VETO, or DOWNGRADE. A DOWNGRADE forces the decision's signal to HOLD.
type Guard interface {
	ID() string
	Check(d decision.Decision, p portfolio.State, snap market.MarketSnapshot) Outcome
}

func pass(d decision.Decision) Outcome {
	return Outcome{Result: ResultPass, Signal: d}
}

func veto(id, reason string, d decision.Decision) Outcome {
	return Outcome{Result: ResultVeto, By: id, Reason: reason, Signal: d}
}

func downgrade(id, reason string, d decision.Decision) Outcome {
	d.Signal = analyst.SignalHold
	return Outcome{Result: ResultDowngrade, By: id, Reason: reason, Signal: d}
}
