// Package decision aggregates analyst opinions into a single weighted
// trading decision (C4).
package decision

import (
	"fmt"
	"time"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/market"
)

// Contribution records one analyst's weighted input into a CombinedDecision,
// for auditability in the journal.
type Contribution struct {
	Signal        analyst.Signal
	Confidence    int
	Weight        float64 // post-penalty, post-renormalization weight
	WeightedScore float64 // weight * signed score
}

// Decision is the aggregated directional intent and confidence, per
// spec.md §3's CombinedDecision entity.
type Decision struct {
	Pair          market.Pair
	Timestamp     time.Time
	Signal        analyst.Signal
	Confidence    int // 0-100
	Score         float64
	Contributions map[string]Contribution // analyst_id -> contribution
	MoodTag       string
}

// Validate enforces Σ weights = 1 (within tolerance) per spec.md §3.
func (d Decision) Validate() error {
	sum := 0.0
	for _, c := range d.Contributions {
		sum += c.Weight
	}
	if len(d.Contributions) > 0 && (sum < 1-1e-6 || sum > 1+1e-6) {
		return fmt.Errorf("decision: contribution weights sum to %f, want 1", sum)
	}
	return nil
}
