// Package portfolio defines the read-only view into portfolio state that
// guards and the sizer consume, and an in-memory fake for tests/backtests.
// The real portfolio is owned by an external execution collaborator; the
// core only ever holds a consistent copy taken once at guard-chain entry
// (spec.md §9 "snapshot-at-guard-entry").
package portfolio

import "github.com/shopspring/decimal"

// Position is one open position in a base asset.
type Position struct {
	Qty          decimal.Decimal
	AvgEntry     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// State is an immutable, read-only view of portfolio state at one instant.
type State struct {
	CashQuote        decimal.Decimal
	Positions        map[string]Position // base asset -> position
	OpenRiskExposure decimal.Decimal
	DrawdownFromPeak decimal.Decimal // fraction, e.g. 0.12 = 12%
	LastTradeTime    map[string]int64 // pair string -> unix nanos of last PASS decision, for CooldownGuard
	EquityTotal      decimal.Decimal
}

// Provider is the external collaborator contract: a consistent copy is
// fetched once per guard-chain entry.
type Provider interface {
	Snapshot() (State, error)
}
