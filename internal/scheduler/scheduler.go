// Package scheduler implements the Trigger Scheduler (C7): fires cycles per
// (pair, interval) schedule, with manual/emergency triggers and an
// at-most-one-in-flight-per-pair guarantee. Grounded on
// aristath-sentinel/trader-go/internal/scheduler/scheduler.go's thin
// cron.Cron wrapper registering named jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/market"
)

// Cause identifies why a cycle fired.
type Cause string

const (
	CauseScheduled Cause = "SCHEDULED"
	CauseManual    Cause = "MANUAL"
	CauseEmergency Cause = "EMERGENCY"
)

// Trigger is one fire event for a pair.
type Trigger struct {
	Pair     market.Pair
	FireTime time.Time
	Cause    Cause
}

// Cycle is the unit of work the scheduler runs — one Orchestrator cycle.
type Cycle interface {
	Run(ctx context.Context, t Trigger)
}

// pairState tracks per-pair busy-flag, the in-flight cycle's cancellation
// handle, and monotonic fire-time guarantees (spec.md §4.7, §9 "per-pair
// busy flag owned by the scheduler"). cancel/done are only valid while
// running is true; they let TriggerEmergency preempt an in-flight cycle
// instead of merely coalescing against it like a routine tick.
type pairState struct {
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}

	lastFire    atomic.Int64 // unix nanos, for monotonicity
	skippedBusy atomic.Int64 // metric: coalesced triggers dropped
}

// Scheduler maintains one robfig/cron entry per configured (pair, interval)
// and exposes manual/emergency trigger methods that reuse the same busy-flag
// gate.
type Scheduler struct {
	cron   *cron.Cron
	cycle  Cycle
	log    zerolog.Logger
	mu     sync.Mutex
	states map[market.Pair]*pairState
	ctx    context.Context
}

func New(cycle Cycle, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		cycle:  cycle,
		log:    log.With().Str("component", "scheduler").Logger(),
		states: make(map[market.Pair]*pairState),
		ctx:    context.Background(),
	}
}

// cronSpec maps a candle interval to a cron schedule firing at each boundary.
func cronSpec(interval market.Interval) (string, error) {
	switch interval {
	case market.Interval1m:
		return "0 * * * * *", nil
	case market.Interval5m:
		return "0 */5 * * * *", nil
	case market.Interval15m:
		return "0 */15 * * * *", nil
	case market.Interval1h:
		return "0 0 * * * *", nil
	case market.Interval4h:
		return "0 0 */4 * * *", nil
	case market.Interval1d:
		return "0 0 0 * * *", nil
	default:
		return "", fmt.Errorf("scheduler: no cron spec for interval %q", interval)
	}
}

// AddPair registers a (pair, interval) schedule. Must be called before Start.
func (s *Scheduler) AddPair(pair market.Pair) error {
	spec, err := cronSpec(pair.Interval)
	if err != nil {
		return err
	}
	s.mu.Lock()
	state := &pairState{}
	s.states[pair] = state
	s.mu.Unlock()

	_, err = s.cron.AddFunc(spec, func() {
		s.fire(Trigger{Pair: pair, FireTime: time.Now().UTC(), Cause: CauseScheduled}, state)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", pair, err)
	}
	return nil
}

// Start begins firing scheduled triggers; it does not block.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until in-flight cron jobs (not cycles — cycles run
// asynchronously) return, then stops accepting new ticks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// TriggerNow is the manual trigger; cause=MANUAL, same busy-flag gate as a
// scheduled tick.
func (s *Scheduler) TriggerNow(pair market.Pair) error {
	state, err := s.stateFor(pair)
	if err != nil {
		return err
	}
	s.fire(Trigger{Pair: pair, FireTime: time.Now().UTC(), Cause: CauseManual}, state)
	return nil
}

// TriggerEmergency is higher priority: per spec.md §4.7 it "may preempt a
// pending scheduled cycle for the same pair." Unlike a scheduled tick or
// TriggerNow, which coalesce (drop) against a cycle already in flight, an
// emergency trigger cancels the in-flight cycle's context, waits for it to
// unwind (it is discarded with no JournalRecord, the same as a shutdown
// cancellation), and then starts immediately — the at-most-one-in-flight
// invariant is preserved throughout.
func (s *Scheduler) TriggerEmergency(pair market.Pair, reason string) error {
	state, err := s.stateFor(pair)
	if err != nil {
		return err
	}
	s.log.Warn().Str("pair", pair.String()).Str("reason", reason).Msg("emergency trigger")
	s.start(Trigger{Pair: pair, FireTime: time.Now().UTC(), Cause: CauseEmergency}, state, true)
	return nil
}

func (s *Scheduler) stateFor(pair market.Pair) (*pairState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[pair]
	if !ok {
		return nil, fmt.Errorf("scheduler: pair %s not registered", pair)
	}
	return state, nil
}

// fire is the routine (non-preempting) entry point used by cron ticks and
// TriggerNow: it enforces at-most-one-in-flight-per-pair by coalescing
// (dropping) the trigger when a cycle is already running for the pair.
func (s *Scheduler) fire(t Trigger, state *pairState) {
	s.start(t, state, false)
}

// start enforces monotonic fire_time, then either coalesces against an
// in-flight cycle (preempt=false, the routine/manual path) or cancels it
// and waits for it to unwind before starting the new one (preempt=true,
// the emergency path) — see TriggerEmergency.
func (s *Scheduler) start(t Trigger, state *pairState, preempt bool) {
	nowNanos := t.FireTime.UnixNano()
	for {
		last := state.lastFire.Load()
		if nowNanos <= last {
			nowNanos = last + 1 // preserve monotonicity without rejecting same-instant manual/emergency triggers
		}
		if state.lastFire.CompareAndSwap(last, nowNanos) {
			break
		}
	}
	t.FireTime = time.Unix(0, nowNanos).UTC()

	state.mu.Lock()
	if state.running {
		if !preempt {
			state.mu.Unlock()
			state.skippedBusy.Add(1)
			s.log.Debug().Str("pair", t.Pair.String()).Str("cause", string(t.Cause)).Msg("coalesced: cycle already in flight")
			return
		}
		cancel, done := state.cancel, state.done
		state.mu.Unlock()
		cancel()
		<-done // wait for the preempted cycle to fully unwind (discarded, no JournalRecord)
		state.mu.Lock()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	state.running = true
	state.cancel = cancel
	state.done = done
	state.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			state.mu.Lock()
			state.running = false
			state.cancel = nil
			state.done = nil
			state.mu.Unlock()
		}()
		defer cancel()
		s.cycle.Run(ctx, t)
	}()
}

// SkippedBusy returns the coalesced-trigger counter for a pair, for metrics.
func (s *Scheduler) SkippedBusy(pair market.Pair) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[pair]; ok {
		return state.skippedBusy.Load()
	}
	return 0
}
