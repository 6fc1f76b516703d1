package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/market"
)

func pair() market.Pair {
	return market.Pair{Base: "BTC", Quote: "USDT", Interval: market.Interval1h}
}

func op(id string, sig analyst.Signal, conf int, q analyst.DataQuality) analyst.Opinion {
	return analyst.Opinion{AnalystID: id, Signal: sig, Confidence: conf, DataQuality: q}
}

// Scenario 1: Happy path.
func TestCombine_HappyPath(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalBuy, 80, analyst.QualityFull),
		op("b", analyst.SignalBuy, 60, analyst.QualityFull),
		op("c", analyst.SignalHold, 0, analyst.QualityFull),
	})

	assert.Equal(t, analyst.SignalBuy, d.Signal)
	assert.InDelta(t, 0.58, d.Score, 1e-9)
	assert.Equal(t, 58, d.Confidence)
}

// Scenario 2: Conflict -> HOLD.
func TestCombine_ConflictHolds(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.5, "b": 0.5})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalBuy, 70, analyst.QualityFull),
		op("b", analyst.SignalSell, 70, analyst.QualityFull),
	})

	assert.Equal(t, analyst.SignalHold, d.Signal)
	assert.Equal(t, 0, d.Confidence)
	assert.InDelta(t, 0, d.Score, 1e-9)
}

// Scenario 3: Fallback penalty.
func TestCombine_FallbackPenalty(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.5, "b": 0.5})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalBuy, 90, analyst.QualityFallback),
		op("b", analyst.SignalHold, 0, analyst.QualityFull),
	})

	assert.Equal(t, analyst.SignalBuy, d.Signal)
	assert.InDelta(t, 1.0/3, d.Contributions["a"].Weight, 1e-9)
	assert.InDelta(t, 2.0/3, d.Contributions["b"].Weight, 1e-9)
	assert.InDelta(t, 0.30, d.Score, 1e-9)
	assert.Equal(t, 30, d.Confidence)
}

func TestCombine_AllFallbackHolds(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.6, "b": 0.4})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalHold, 0, analyst.QualityFallback),
		op("b", analyst.SignalHold, 0, analyst.QualityFallback),
	})

	assert.Equal(t, analyst.SignalHold, d.Signal)
	assert.Equal(t, 0, d.Confidence)
}

func TestCombine_SingleAnalystFullWeight(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 1.0})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalBuy, 80, analyst.QualityFull),
	})

	assert.Equal(t, analyst.SignalBuy, d.Signal)
	assert.Equal(t, 80, d.Confidence)
}

func TestCombine_DeterministicOnIdenticalInputs(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.5, "b": 0.5})
	c := NewCombiner(cfg)
	opinions := []analyst.Opinion{
		op("a", analyst.SignalBuy, 70, analyst.QualityFull),
		op("b", analyst.SignalBuy, 40, analyst.QualityFull),
	}

	d1 := c.Combine(pair(), opinions)
	d2 := c.Combine(pair(), opinions)
	assert.Equal(t, d1.Signal, d2.Signal)
	assert.Equal(t, d1.Confidence, d2.Confidence)
	assert.Equal(t, d1.Score, d2.Score)
}

// Confidence cap must select by weight, not by raw confidence: analyst "a"
// has the highest confidence (95) but analyst "b" has the highest weight
// (0.6) among agreeing analysts, so the cap is b's confidence (20), not a's.
func TestCombine_ConfidenceCapSelectsByWeightNotConfidence(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.1, "b": 0.6, "c": 0.3})
	c := NewCombiner(cfg)

	d := c.Combine(pair(), []analyst.Opinion{
		op("a", analyst.SignalBuy, 95, analyst.QualityFull),
		op("b", analyst.SignalBuy, 20, analyst.QualityFull),
		op("c", analyst.SignalHold, 0, analyst.QualityFull),
	})

	assert.Equal(t, analyst.SignalBuy, d.Signal)
	assert.InDelta(t, 0.215, d.Score, 1e-9)
	assert.Equal(t, 20, d.Confidence)
}

func TestConfig_ValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig(map[string]float64{"a": 0.5, "b": 0.2})
	require.Error(t, cfg.Validate())
}
