// Package sizing implements the Position Sizer (C6): maps a PASS decision,
// confidence, volatility, and portfolio state to an order size in quote
// currency.
package sizing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/volatility"
)

// Config mirrors spec.md §6 `sizing` config block.
type Config struct {
	BaseNotionalQuote    decimal.Decimal
	MinQuote             decimal.Decimal
	MaxQuote             decimal.Decimal
	ConfidenceMultiplier float64
	VolFloor             float64
	VolCap               float64
	VolSensitivity       float64
}

func (c Config) Validate() error {
	if c.MinQuote.GreaterThan(c.MaxQuote) {
		return fmt.Errorf("sizing: min_quote %s must be <= max_quote %s", c.MinQuote, c.MaxQuote)
	}
	if c.VolFloor > c.VolCap {
		return fmt.Errorf("sizing: vol_floor %f must be <= vol_cap %f", c.VolFloor, c.VolCap)
	}
	return nil
}

// Inputs captures every value that fed a sizing computation, recorded
// verbatim on the TradeIntent's sizing_inputs for auditability.
type Inputs struct {
	BaseNotionalQuote decimal.Decimal `json:"base_notional_quote"`
	ConfidenceFactor  float64         `json:"confidence_factor"`
	VolPct            float64         `json:"vol_pct"`
	VolFactor         float64         `json:"vol_factor"`
	PositionQuote     decimal.Decimal `json:"position_quote"`
	ReferencePrice    decimal.Decimal `json:"reference_price"`
}

type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes quantity_base per spec.md §4.6's formula.
func (s *Sizer) Size(d decision.Decision, vol volatility.Result, referencePrice decimal.Decimal) (decimal.Decimal, Inputs, error) {
	if referencePrice.IsZero() || referencePrice.IsNegative() {
		return decimal.Zero, Inputs{}, fmt.Errorf("sizing: reference_price must be positive, got %s", referencePrice)
	}

	confidenceFactor := clampFloat(float64(d.Confidence)/100*s.cfg.ConfidenceMultiplier, 0.1, 1.0)

	clampedVol := clampFloat(vol.Pct, s.cfg.VolFloor, s.cfg.VolCap)
	volFactor := math.Max(0.1, math.Pow(clampedVol/2, s.cfg.VolSensitivity))

	positionQuoteFloat := s.cfg.BaseNotionalQuote.InexactFloat64() * confidenceFactor / volFactor
	positionQuote := decimal.NewFromFloat(positionQuoteFloat)
	positionQuote = clampDecimal(positionQuote, s.cfg.MinQuote, s.cfg.MaxQuote)

	quantityBase := positionQuote.Div(referencePrice)

	inputs := Inputs{
		BaseNotionalQuote: s.cfg.BaseNotionalQuote,
		ConfidenceFactor:  confidenceFactor,
		VolPct:            vol.Pct,
		VolFactor:         volFactor,
		PositionQuote:     positionQuote,
		ReferencePrice:    referencePrice,
	}
	return quantityBase, inputs, nil
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDecimal(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}
