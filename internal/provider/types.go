// Package provider holds the market-data provider contract, the ordered
// failover registry (C1), and the central retry policy shared by every
// provider call.
package provider

import (
	"context"
	"time"

	"github.com/marketcycle/orchestrator/internal/market"
)

// Capability is one kind of market data a provider may serve.
type Capability string

const (
	CapabilityCandles Capability = "CANDLES"
	CapabilityTicker  Capability = "TICKER"
	CapabilityDepth   Capability = "DEPTH"
	CapabilityFunding Capability = "FUNDING"
	CapabilityOI      Capability = "OI"
)

// Role is a provider's priority tier.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
)

// Config describes one configured provider entry.
type Config struct {
	ID         string
	Role       Role
	BaseURL    string
	AuthEnvKey string // e.g. "<PROVIDER>_KEY" — the actual secret is read from env, never stored here
	Supports   map[Capability]bool
}

func (c Config) Supports_(cap Capability) bool { return c.Supports[cap] }

// Provider is the contract a market-data collaborator must implement.
// The core never talks to an exchange directly; it only calls this
// interface, so live connectors are pluggable collaborators.
type Provider interface {
	ID() string
	FetchCandles(ctx context.Context, pair market.Pair, limit int) ([]market.Candle, error)
	FetchTicker(ctx context.Context, pair market.Pair) (market.Ticker, error)
	FetchDepth(ctx context.Context, pair market.Pair, levels int) (market.DepthLevels, error)
	FetchDerivatives(ctx context.Context, pair market.Pair) (*market.DerivativesFact, error)
}

// RetryAfter is implemented by errors that carry a server-suggested delay.
type RetryAfter interface {
	RetryAfter() time.Duration
}
