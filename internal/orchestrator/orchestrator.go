// Package orchestrator owns the per-pair cycle state machine
// (IDLE→FETCHING→ANALYZING→COMBINING→GUARDING→SIZING→PUBLISHING→LOGGING→IDLE),
// wiring the Provider Registry, Market Snapshot Assembler, Analyst Pool,
// Decision Combiner, Guard Chain, Position Sizer, and Decision Journal into
// one cycle per Trigger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/guard"
	"github.com/marketcycle/orchestrator/internal/journal"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
	"github.com/marketcycle/orchestrator/internal/scheduler"
	"github.com/marketcycle/orchestrator/internal/sizing"
	"github.com/marketcycle/orchestrator/internal/volatility"
)

// Stage names a point in the cycle state machine; recorded on an
// ErrorRecord and used as a metrics label.
type Stage string

const (
	StageFetching   Stage = "FETCHING"
	StageAnalyzing  Stage = "ANALYZING"
	StageCombining  Stage = "COMBINING"
	StageGuarding   Stage = "GUARDING"
	StageSizing     Stage = "SIZING"
	StagePublishing Stage = "PUBLISHING"
	StageLogging    Stage = "LOGGING"
)

// Metrics is the per-process singleton set of cycle-level Prometheus
// collectors, shared across every per-pair Orchestrator instance. Grounded
// on the teacher's getOrCreateOrchestratorMetrics sync.Once pattern, which
// exists specifically to avoid duplicate-registration panics when more than
// one Orchestrator is constructed in the same process.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	DataUnavailable *prometheus.CounterVec
	InternalErrors  *prometheus.CounterVec
	GuardOutcomes   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "orchestrator_cycles_total",
				Help: "Total cycles run, by pair and outcome",
			}, []string{"pair", "outcome"}),
			CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "orchestrator_cycle_duration_seconds",
				Help:    "Duration of a full cycle",
				Buckets: prometheus.DefBuckets,
			}, []string{"pair"}),
			DataUnavailable: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "orchestrator_data_unavailable_total",
				Help: "Cycles aborted for DataUnavailable, by pair",
			}, []string{"pair"}),
			InternalErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "orchestrator_internal_errors_total",
				Help: "Cycles aborted by an unexpected internal error, by pair",
			}, []string{"pair"}),
			GuardOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "orchestrator_guard_outcomes_total",
				Help: "Guard chain outcomes, by pair and result",
			}, []string{"pair", "result"}),
		}
	})
	return metricsInst
}

// Config wires one Orchestrator instance to one configured pair's
// collaborators. One instance exists per configured pair, run by the
// Scheduler.
type Config struct {
	Pair      market.Pair
	Assembler *market.Assembler
	Pool      *analyst.Pool
	Combiner  *decision.Combiner
	// Guards excludes VolatilityGuard: it runs last, fed the single
	// volatility.Result computed once for the cycle, never recomputed
	// independently (see runGuards).
	Guards        []guard.Guard
	VolGuard      *guard.VolatilityGuard
	Sizer         *sizing.Sizer
	Portfolio     portfolio.Provider
	Journal       *journal.Journal
	CycleDeadline time.Duration // default: min(2*interval, 90s)
}

// Orchestrator owns one cycle end-to-end for one pair: Trigger through
// JournalRecord. Grounded on internal/orchestrator/orchestrator.go's
// Initialize/Run/Shutdown lifecycle (cancellable context, graceful
// shutdown), generalized from a single NATS pub/sub loop into the per-pair
// cycle state machine.
type Orchestrator struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics
}

func New(cfg Config, log zerolog.Logger) (*Orchestrator, error) {
	if cfg.CycleDeadline <= 0 {
		d, err := cfg.Pair.Interval.Duration()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		cfg.CycleDeadline = 2 * d
		if cfg.CycleDeadline > 90*time.Second {
			cfg.CycleDeadline = 90 * time.Second
		}
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     log.With().Str("component", "orchestrator").Str("pair", cfg.Pair.String()).Logger(),
		metrics: getMetrics(),
	}, nil
}

// Run implements scheduler.Cycle. It never returns an error to the
// scheduler: every failure is contained within the cycle per the
// Orchestrator's error-class handling table — only journal writes surface a
// counter, nothing is fatal here.
func (o *Orchestrator) Run(parentCtx context.Context, t scheduler.Trigger) {
	cycleCtx, cancel := context.WithTimeout(parentCtx, o.cfg.CycleDeadline)
	defer cancel()

	start := time.Now()
	rec := journal.Record{
		V:        1,
		CycleID:  uuid.New().String(),
		Pair:     o.cfg.Pair.String(),
		Interval: string(o.cfg.Pair.Interval),
		Trigger: journal.TriggerInfo{
			Cause:    string(t.Cause),
			FireTime: t.FireTime.UTC().Format(time.RFC3339),
		},
	}
	outcome := "ok"
	shutdownDiscard := false

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("cycle_id", rec.CycleID).Msg("internal error: cycle panicked")
			rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageLogging), Kind: "Internal", Detail: fmt.Sprintf("%v", r)})
			o.metrics.InternalErrors.WithLabelValues(o.cfg.Pair.String()).Inc()
			outcome = "internal_error"
		}
		rec.DurationMs = time.Since(start).Milliseconds()
		o.metrics.CyclesTotal.WithLabelValues(o.cfg.Pair.String(), outcome).Inc()
		o.metrics.CycleDuration.WithLabelValues(o.cfg.Pair.String()).Observe(time.Since(start).Seconds())

		if shutdownDiscard {
			o.log.Info().Str("cycle_id", rec.CycleID).Msg("cycle cancelled by shutdown, discarding partial state")
			return
		}
		if err := o.cfg.Journal.Write(rec); err != nil {
			var wf *journal.WriteFailedError
			if errors.As(err, &wf) {
				o.log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("journal write failed, will retry next cycle")
			}
		}
	}()

	// abort checks for cancellation at a suspension-point boundary. A
	// process shutdown (parentCtx also done) discards the cycle entirely,
	// per the cancellation semantics; a cycle-deadline timeout alone still
	// produces a record.
	abort := func(stage Stage) bool {
		if cycleCtx.Err() == nil {
			return false
		}
		if parentCtx.Err() != nil {
			shutdownDiscard = true
			return true
		}
		rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(stage), Kind: "Internal", Detail: "cycle deadline exceeded"})
		outcome = "deadline_exceeded"
		return true
	}

	// FETCHING
	snap, err := o.cfg.Assembler.Assemble(cycleCtx, o.cfg.Pair, t.FireTime)
	if err != nil {
		var dataErr *market.DataUnavailableError
		if errors.As(err, &dataErr) {
			o.metrics.DataUnavailable.WithLabelValues(o.cfg.Pair.String()).Inc()
			rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageFetching), Kind: "DataUnavailable", Detail: dataErr.Error()})
			outcome = "data_unavailable"
			return
		}
		rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageFetching), Kind: "Internal", Detail: err.Error()})
		outcome = "internal_error"
		return
	}
	rec.Snapshot = journal.SnapshotInfo{TSnap: snap.TSnap.UTC().Format(time.RFC3339), Quality: string(snap.Quality)}
	if abort(StageFetching) {
		return
	}

	// ANALYZING — a failed or timed-out analyst slot degrades to a
	// FALLBACK opinion inside the Pool; it never surfaces as a cycle error.
	opinions := o.cfg.Pool.Run(cycleCtx, snap)
	for _, op := range opinions {
		rec.Opinions = append(rec.Opinions, journal.OpinionRecord{
			AnalystID:   op.AnalystID,
			Signal:      string(op.Signal),
			Confidence:  op.Confidence,
			DataQuality: string(op.DataQuality),
		})
	}
	if abort(StageAnalyzing) {
		return
	}

	// COMBINING
	d := o.cfg.Combiner.Combine(o.cfg.Pair, opinions)
	for id, c := range d.Contributions {
		for i := range rec.Opinions {
			if rec.Opinions[i].AnalystID == id {
				rec.Opinions[i].Weight = c.Weight
				rec.Opinions[i].WeightedScore = c.WeightedScore
			}
		}
	}
	rec.Decision = journal.DecisionRecord{Signal: string(d.Signal), Confidence: d.Confidence, Score: d.Score}
	if abort(StageCombining) {
		return
	}

	// GUARDING
	portfolioState, err := o.cfg.Portfolio.Snapshot()
	if err != nil {
		rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageGuarding), Kind: "Internal", Detail: err.Error()})
		outcome = "internal_error"
		return
	}
	vol, err := volatility.FromSnapshot(snap)
	if err != nil {
		rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageGuarding), Kind: "Internal", Detail: err.Error()})
		outcome = "internal_error"
		return
	}
	guardOutcome := o.runGuards(d, portfolioState, snap, vol)
	o.metrics.GuardOutcomes.WithLabelValues(o.cfg.Pair.String(), string(guardOutcome.Result)).Inc()
	rec.GuardOutcome = journal.GuardOutcomeRecord{Result: string(guardOutcome.Result), By: guardOutcome.By, Reason: guardOutcome.Reason}
	d = guardOutcome.Signal
	if abort(StageGuarding) {
		return
	}

	// SIZING — only for a decision the guard chain left actionable.
	if d.Signal != analyst.SignalHold {
		qty, inputs, err := o.cfg.Sizer.Size(d, vol, snap.Ticker.Last)
		if err != nil {
			rec.Errors = append(rec.Errors, journal.ErrorRecord{Stage: string(StageSizing), Kind: "Internal", Detail: err.Error()})
			outcome = "internal_error"
			return
		}
		rec.Intent = &journal.IntentRecord{
			Side:         string(d.Signal),
			QuantityBase: qty.String(),
			SizingInputs: map[string]any{
				"base_notional_quote": inputs.BaseNotionalQuote.String(),
				"confidence_factor":   inputs.ConfidenceFactor,
				"vol_pct":             inputs.VolPct,
				"vol_factor":          inputs.VolFactor,
				"position_quote":      inputs.PositionQuote.String(),
				"reference_price":     inputs.ReferencePrice.String(),
			},
		}
	}
	if abort(StageSizing) {
		return
	}

	// PUBLISHING: the TradeIntent on the journal record is the publication
	// surface; placing a live order is an external execution collaborator's
	// concern, out of scope for the core.

	// LOGGING happens in the deferred journal.Write above.
}

// runGuards evaluates the non-volatility guard chain, then — only if it
// still passes — the VolatilityGuard against the single volatility.Result
// computed once for this cycle, so volatility is never recomputed
// independently between the guard chain and the sizer.
func (o *Orchestrator) runGuards(d decision.Decision, p portfolio.State, snap market.MarketSnapshot, vol volatility.Result) guard.Outcome {
	chain := guard.NewChain(o.cfg.Guards...)
	out := chain.Evaluate(d, p, snap)
	if out.Result != guard.ResultPass || o.cfg.VolGuard == nil {
		return out
	}
	return o.cfg.VolGuard.CheckWithVolatility(out.Signal, vol)
}
