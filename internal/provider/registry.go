package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/market"
)

// Registry holds configured providers in priority order and serves ordered
// failover chains per capability, per spec.md §4.1. Health state (the
// demote/expire-by-TTL machine) is the only mutable state it owns; it is
// guarded internally so reads are concurrent and writes are serialized by
// the underlying gobreaker instances.
type Registry struct {
	providers map[string]Provider
	configs   map[string]Config
	order     []string // configured priority order, primaries before fallbacks
	health    *healthTable
	retry     RetryPolicy
	log       zerolog.Logger
}

// New builds a Registry from configured provider entries and their bound
// implementations. Providers not found in impls are skipped, without a log
// line, at call time for the capabilities they claim to support.
func New(configs []Config, impls map[string]Provider, retry RetryPolicy, log zerolog.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(configs)),
		configs:   make(map[string]Config, len(configs)),
		health:    newHealthTable(),
		retry:     retry,
		log:       log.With().Str("component", "provider_registry").Logger(),
	}
	for _, c := range configs {
		r.configs[c.ID] = c
		r.order = append(r.order, c.ID)
		if impl, ok := impls[c.ID]; ok {
			r.providers[c.ID] = impl
		}
	}
	// Stable order: primaries first, then fallbacks, preserving configured
	// order within each tier.
	sort.SliceStable(r.order, func(i, j int) bool {
		ri, rj := r.configs[r.order[i]].Role, r.configs[r.order[j]].Role
		return ri == RolePrimary && rj != RolePrimary
	})
	return r
}

// ProvidersFor returns, in priority order, the IDs of providers currently
// healthy enough to attempt for a capability.
func (r *Registry) ProvidersFor(cap Capability) []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		cfg, ok := r.configs[id]
		if !ok || !cfg.Supports[cap] {
			continue
		}
		if !r.health.healthy(healthKey{providerID: id, capability: cap}) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// MarkUnhealthy temporarily demotes a provider for a capability for ttl.
// The provider is not called for that capability while demoted, so no probe
// ends the demotion early; once ttl has passed it is eligible again.
func (r *Registry) MarkUnhealthy(providerID string, capability Capability, reason string, ttl time.Duration) {
	r.log.Warn().Str("provider", providerID).Str("capability", string(capability)).
		Str("reason", reason).Dur("ttl", ttl).Msg("marking provider unhealthy")
	r.health.markUnhealthy(healthKey{providerID: providerID, capability: capability}, ttl)
}

// unhealthyTTL is the open window of the breaker every provider call runs
// through: once failing calls trip it, the provider stays demoted for that
// capability this long.
const unhealthyTTL = 60 * time.Second

// FetchCandles attempts providers_for(CANDLES) in order, retrying each
// eligible provider per the registry's retry policy, failing over to the
// next on a non-retryable error, a schema validation failure, or after
// retry exhaustion. Schema validation happens here, inside the per-provider
// call, so a provider returning a 200 with invalid data (e.g. a candle with
// high < max(open,close)) is treated exactly like a transport error and
// triggers failover to the next provider, per spec.md §4.2 ("validation
// failures count as provider errors and trigger failover").
func (r *Registry) FetchCandles(ctx context.Context, pair market.Pair, limit int) ([]market.Candle, error) {
	var out []market.Candle
	err := r.attempt(ctx, CapabilityCandles, func(ctx context.Context, p Provider) error {
		candles, err := p.FetchCandles(ctx, pair, limit)
		if err != nil {
			return err
		}
		if err := market.ValidateCandles(candles); err != nil {
			return err
		}
		out = candles
		return nil
	})
	return out, err
}

// FetchTicker is FetchCandles' counterpart for the TICKER capability.
func (r *Registry) FetchTicker(ctx context.Context, pair market.Pair) (market.Ticker, error) {
	var out market.Ticker
	err := r.attempt(ctx, CapabilityTicker, func(ctx context.Context, p Provider) error {
		t, err := p.FetchTicker(ctx, pair)
		if err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// FetchDepth is FetchCandles' counterpart for the DEPTH capability.
func (r *Registry) FetchDepth(ctx context.Context, pair market.Pair, levels int) (market.DepthLevels, error) {
	var out market.DepthLevels
	err := r.attempt(ctx, CapabilityDepth, func(ctx context.Context, p Provider) error {
		d, err := p.FetchDepth(ctx, pair, levels)
		if err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// FetchDerivatives is optional: a nil result with nil error means no
// provider supports FUNDING/OI for this pair, which the assembler treats as
// "component missing" rather than an error.
func (r *Registry) FetchDerivatives(ctx context.Context, pair market.Pair) (*market.DerivativesFact, error) {
	ids := r.ProvidersFor(CapabilityFunding)
	if len(ids) == 0 {
		ids = r.ProvidersFor(CapabilityOI)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out *market.DerivativesFact
	err := r.attemptIDs(ctx, CapabilityFunding, ids, func(ctx context.Context, p Provider) error {
		d, err := p.FetchDerivatives(ctx, pair)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// attempt runs call against each healthy provider for capability in order,
// applying the retry policy per provider and failing over on exhaustion.
func (r *Registry) attempt(ctx context.Context, cap Capability, call func(context.Context, Provider) error) error {
	return r.attemptIDs(ctx, cap, r.ProvidersFor(cap), call)
}

func (r *Registry) attemptIDs(ctx context.Context, cap Capability, ids []string, call func(context.Context, Provider) error) error {
	if len(ids) == 0 {
		return &market.DataUnavailableError{Capability: string(cap), Reason: "no healthy provider configured"}
	}

	var lastErr error
	for _, id := range ids {
		p, ok := r.providers[id]
		if !ok {
			continue
		}
		key := healthKey{providerID: id, capability: cap}
		err := r.health.call(key, unhealthyTTL, func() error {
			return r.retry.Run(ctx, id, func(ctx context.Context) error { return call(ctx, p) })
		})
		if err == nil {
			return nil
		}
		lastErr = err
		r.log.Warn().Str("provider", id).Str("capability", string(cap)).Err(err).Msg("provider failed, trying next")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider bound for capability %s", cap)
	}
	return &market.DataUnavailableError{Capability: string(cap), Reason: lastErr.Error()}
}
