package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/market"
)

// Config is the combiner's policy, per spec.md §6 `combiner` config block.
type Config struct {
	Weights         map[string]float64 // analyst_id -> configured weight; Σ = 1
	ThetaBuy        float64            // default 0.15
	ThetaSell       float64            // default 0.15
	FallbackPenalty float64            // default 0.5
}

func DefaultConfig(weights map[string]float64) Config {
	return Config{Weights: weights, ThetaBuy: 0.15, ThetaSell: 0.15, FallbackPenalty: 0.5}
}

func (c Config) Validate() error {
	sum := 0.0
	for _, w := range c.Weights {
		sum += w
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		return fmt.Errorf("decision: configured weights sum to %f, want 1", sum)
	}
	if c.ThetaBuy <= 0 || c.ThetaSell <= 0 {
		return fmt.Errorf("decision: theta_buy/theta_sell must be positive")
	}
	if c.FallbackPenalty < 0 || c.FallbackPenalty > 1 {
		return fmt.Errorf("decision: fallback_penalty must be in [0,1]")
	}
	return nil
}

// Combiner implements spec.md §4.4's weighted-mean-with-thresholding
// algorithm. It is a pure, deterministic function of its inputs and config —
// the teacher's calculateDecision (a vote-bucket max-score scheme) is
// deliberately not ported; see DESIGN.md Open Question 2.
type Combiner struct {
	cfg Config
}

func NewCombiner(cfg Config) *Combiner {
	return &Combiner{cfg: cfg}
}

// scoredOpinion is one analyst's opinion alongside its renormalized weight
// and signed score, carried between Combine's two passes so the confidence
// cap (topWeightedAgreeingConfidence) can select by weight rather than by
// raw confidence.
type scoredOpinion struct {
	op         analyst.Opinion
	rawWeight  float64
	normWeight float64
	score      float64
}

// Combine aggregates opinions into one Decision. opinions must be in stable
// configured analyst order (the Pool's contract); weights missing from the
// combiner's config default to 0 and are dropped during renormalization.
func (c *Combiner) Combine(pair market.Pair, opinions []analyst.Opinion) Decision {
	scoredOps := make([]scoredOpinion, 0, len(opinions))
	rawWeightSum := 0.0
	for _, op := range opinions {
		w := c.cfg.Weights[op.AnalystID]
		if op.DataQuality == analyst.QualityPartial || op.DataQuality == analyst.QualityFallback {
			w *= c.cfg.FallbackPenalty
		}
		rawWeightSum += w
		score := float64(op.Signal.Direction()) * (float64(op.Confidence) / 100)
		scoredOps = append(scoredOps, scoredOpinion{op: op, rawWeight: w, score: score})
	}

	contributions := make(map[string]Contribution, len(scoredOps))
	combinedScore := 0.0
	for i, s := range scoredOps {
		normWeight := 0.0
		if rawWeightSum > 0 {
			normWeight = s.rawWeight / rawWeightSum
		}
		scoredOps[i].normWeight = normWeight
		weightedScore := normWeight * s.score
		combinedScore += weightedScore
		contributions[s.op.AnalystID] = Contribution{
			Signal:        s.op.Signal,
			Confidence:    s.op.Confidence,
			Weight:        normWeight,
			WeightedScore: weightedScore,
		}
	}

	signal := analyst.SignalHold
	switch {
	case combinedScore >= c.cfg.ThetaBuy:
		signal = analyst.SignalBuy
	case combinedScore <= -c.cfg.ThetaSell:
		signal = analyst.SignalSell
	}

	confidence := 0
	if signal != analyst.SignalHold {
		raw := int(math.Round(100 * math.Abs(combinedScore)))
		capVal := topWeightedAgreeingConfidence(scoredOps, signal)
		confidence = raw
		if capVal >= 0 && confidence > capVal {
			confidence = capVal
		}
	}

	return Decision{
		Pair:          pair,
		Timestamp:     time.Now().UTC(),
		Signal:        signal,
		Confidence:    confidence,
		Score:         combinedScore,
		Contributions: contributions,
		MoodTag:       moodTag(signal, confidence),
	}
}

// topWeightedAgreeingConfidence returns the confidence of the
// highest-*weighted* analyst whose signal agrees with direction, capping
// aggregate confidence so disagreement can never inflate it — per spec.md
// §4.4 step 5 ("capped at the confidence of the top-weighted contributing
// analyst whose signal agrees with the direction"), not the highest
// *confidence* among agreeing analysts. Returns -1 if no analyst agrees
// (caller then leaves confidence uncapped, i.e. equal to the raw score —
// this only happens when the threshold crossed on renormalized weight
// alone, an edge case the weighted-mean formula already makes rare).
func topWeightedAgreeingConfidence(scoredOps []scoredOpinion, signal analyst.Signal) int {
	best := -1
	bestWeight := -1.0
	for _, s := range scoredOps {
		if s.op.Signal != signal {
			continue
		}
		if s.normWeight > bestWeight {
			bestWeight = s.normWeight
			best = s.op.Confidence
		}
	}
	return best
}

func moodTag(signal analyst.Signal, confidence int) string {
	switch {
	case signal == analyst.SignalHold:
		return "neutral"
	case confidence >= 70:
		return "conviction"
	case confidence >= 40:
		return "leaning"
	default:
		return "tentative"
	}
}
