// Package market defines the core market data entities shared by the
// provider, analyst, and guard/sizing layers, and assembles consistent
// snapshots of them for one trigger instant.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a candle interval understood by the system.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock duration of one interval boundary.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1m:
		return time.Minute, nil
	case Interval5m:
		return 5 * time.Minute, nil
	case Interval15m:
		return 15 * time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval4h:
		return 4 * time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("market: unknown interval %q", i)
	}
}

func (i Interval) Valid() bool {
	_, err := i.Duration()
	return err == nil
}

// Pair is an immutable trading pair with an associated candle interval.
type Pair struct {
	Base     string
	Quote    string
	Interval Interval
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return fmt.Errorf("market: pair requires both base and quote")
	}
	if !p.Interval.Valid() {
		return fmt.Errorf("market: pair %s has invalid interval %q", p, p.Interval)
	}
	return nil
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
	Trades    int64
}

func (c Candle) Validate() error {
	if !c.OpenTime.Before(c.CloseTime) {
		return fmt.Errorf("market: candle open_time %s must precede close_time %s", c.OpenTime, c.CloseTime)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("market: candle volume must be >= 0, got %s", c.Volume)
	}
	minOC := decimal.Min(c.Open, c.Close)
	maxOC := decimal.Max(c.Open, c.Close)
	if c.Low.GreaterThan(minOC) {
		return fmt.Errorf("market: candle low %s must be <= min(open,close) %s", c.Low, minOC)
	}
	if maxOC.GreaterThan(c.High) {
		return fmt.Errorf("market: candle max(open,close) %s must be <= high %s", maxOC, c.High)
	}
	return nil
}

// DepthLevel is one side of the order book at one price.
type DepthLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l DepthLevel) Validate() error {
	if !l.Price.IsPositive() {
		return fmt.Errorf("market: depth level price must be > 0, got %s", l.Price)
	}
	if !l.Size.IsPositive() {
		return fmt.Errorf("market: depth level size must be > 0, got %s", l.Size)
	}
	return nil
}

// DepthLevels is the order book: bids descending by price, asks ascending.
type DepthLevels struct {
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp time.Time
}

func (d DepthLevels) Validate() error {
	for i, b := range d.Bids {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("market: bid[%d]: %w", i, err)
		}
		if i > 0 && d.Bids[i].Price.GreaterThan(d.Bids[i-1].Price) {
			return fmt.Errorf("market: bids must be descending by price")
		}
	}
	for i, a := range d.Asks {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("market: ask[%d]: %w", i, err)
		}
		if i > 0 && d.Asks[i].Price.LessThan(d.Asks[i-1].Price) {
			return fmt.Errorf("market: asks must be ascending by price")
		}
	}
	if len(d.Bids) > 0 && len(d.Asks) > 0 {
		bestBid := d.Bids[0].Price
		bestAsk := d.Asks[0].Price
		if !bestBid.LessThan(bestAsk) {
			return fmt.Errorf("market: best bid %s must be < best ask %s", bestBid, bestAsk)
		}
	}
	return nil
}

// Ticker is the latest trade/quote summary for a pair.
type Ticker struct {
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp time.Time
}

func (t Ticker) Validate() error {
	if t.Bid.GreaterThan(t.Last) {
		return fmt.Errorf("market: ticker bid %s must be <= last %s", t.Bid, t.Last)
	}
	if t.Last.GreaterThan(t.Ask) {
		return fmt.Errorf("market: ticker last %s must be <= ask %s", t.Last, t.Ask)
	}
	return nil
}

// DerivativesFact carries optional perpetual/futures context for a pair.
type DerivativesFact struct {
	FundingRate  decimal.Decimal
	OpenInterest decimal.Decimal
	Basis        decimal.Decimal
	Timestamp    time.Time
}

// SnapshotQuality reflects whether every optional component was present and fresh.
type SnapshotQuality string

const (
	QualityFull    SnapshotQuality = "FULL"
	QualityPartial SnapshotQuality = "PARTIAL"
)

// StalenessBudget configures the maximum age tolerated per component, relative
// to the trigger instant T.
type StalenessBudget struct {
	Candles time.Duration // default: one interval, resolved by the assembler
	Ticker  time.Duration // default 5s
	Depth   time.Duration // default 10s
}

// MarketSnapshot aggregates one pair's market data at trigger instant T.
type MarketSnapshot struct {
	Pair        Pair
	T           time.Time
	TSnap       time.Time
	Candles     []Candle
	Ticker      Ticker
	Depth       DepthLevels
	Derivatives *DerivativesFact
	Quality     SnapshotQuality
}

func (s MarketSnapshot) Validate() error {
	if err := s.Pair.Validate(); err != nil {
		return err
	}
	if len(s.Candles) == 0 {
		return fmt.Errorf("market: snapshot requires at least one candle")
	}
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("market: snapshot candle[%d]: %w", i, err)
		}
	}
	if err := s.Ticker.Validate(); err != nil {
		return err
	}
	if err := s.Depth.Validate(); err != nil {
		return err
	}
	return nil
}

// ValidateCandles checks a fetched candle series against the Candle
// invariant, plus the assembler's own "at least one candle" requirement.
// Shared by the Provider Registry (so a schema-invalid payload counts as a
// provider error and triggers failover, per spec.md §4.2) and the Assembler
// (which re-checks the already-failed-over result as defense in depth).
func ValidateCandles(candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("market: no candles returned")
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("market: candle[%d]: %w", i, err)
		}
	}
	return nil
}

// Closes returns the close prices of the snapshot's candle window, oldest first.
func (s MarketSnapshot) Closes() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}
