package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/volatility"
)

func defaultCfg() Config {
	return Config{
		BaseNotionalQuote:    decimal.NewFromInt(1000),
		MinQuote:             decimal.NewFromInt(50),
		MaxQuote:             decimal.NewFromInt(5000),
		ConfidenceMultiplier: 1.0,
		VolFloor:             1,
		VolCap:               10,
		VolSensitivity:       1.0,
	}
}

func TestSizer_ClampsWithinMinMax(t *testing.T) {
	s := NewSizer(defaultCfg())
	d := decision.Decision{Confidence: 80}
	qty, inputs, err := s.Size(d, volatility.Result{Pct: 2}, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, inputs.PositionQuote.GreaterThanOrEqual(defaultCfg().MinQuote))
	assert.True(t, inputs.PositionQuote.LessThanOrEqual(defaultCfg().MaxQuote))
	assert.True(t, qty.IsPositive())
}

func TestSizer_HighVolatilityShrinksPosition(t *testing.T) {
	s := NewSizer(defaultCfg())
	d := decision.Decision{Confidence: 80}
	_, lowVol, err := s.Size(d, volatility.Result{Pct: 2}, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, highVol, err := s.Size(d, volatility.Result{Pct: 9}, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, highVol.PositionQuote.LessThan(lowVol.PositionQuote))
}

func TestSizer_ErrorsOnZeroReferencePrice(t *testing.T) {
	s := NewSizer(defaultCfg())
	_, _, err := s.Size(decision.Decision{Confidence: 50}, volatility.Result{Pct: 2}, decimal.Zero)
	require.Error(t, err)
}

func TestSizer_RecordsAllInputs(t *testing.T) {
	s := NewSizer(defaultCfg())
	d := decision.Decision{Confidence: 60, Signal: analyst.SignalBuy}
	_, inputs, err := s.Size(d, volatility.Result{Pct: 3}, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, 3.0, inputs.VolPct)
	assert.Equal(t, decimal.NewFromInt(50).String(), inputs.ReferencePrice.String())
}
