package analyst

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/market"
)

// defaultTimeout is the per-analyst deadline when a role config doesn't
// override it, per spec.md §4.3.
const defaultTimeout = 30 * time.Second

// Pool invokes a fixed, configured set of analyst roles concurrently against
// one MarketSnapshot and normalizes their outputs into a stable-ordered
// opinion list. Grounded on pkg/trader/agents/forecaster.go's
// ForecastEnsemble fan-out (sync.WaitGroup + buffered result channel) and
// internal/agents/base.go's per-agent context.WithTimeout isolation.
type Pool struct {
	roles  []RoleConfig
	source Source
	log    zerolog.Logger
}

func NewPool(roles []RoleConfig, source Source, log zerolog.Logger) *Pool {
	return &Pool{roles: roles, source: source, log: log.With().Str("component", "analyst_pool").Logger()}
}

// Run fans out to one goroutine per role, joined with a barrier. A slot's
// failure, timeout, or schema-invalid output never cancels its siblings —
// it degrades to a FALLBACK opinion instead. The returned slice preserves
// configured role order regardless of completion order.
func (p *Pool) Run(ctx context.Context, snap market.MarketSnapshot) []Opinion {
	results := make([]Opinion, len(p.roles))
	var wg sync.WaitGroup
	wg.Add(len(p.roles))

	for i, role := range p.roles {
		go func(i int, role RoleConfig) {
			defer wg.Done()
			results[i] = p.invoke(ctx, snap, role)
		}(i, role)
	}
	wg.Wait()

	return results
}

func (p *Pool) invoke(ctx context.Context, snap market.MarketSnapshot, role RoleConfig) Opinion {
	timeout := role.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		op  Opinion
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		op, err := p.source.Opine(callCtx, snap, role)
		ch <- outcome{op: op, err: err}
	}()

	select {
	case <-callCtx.Done():
		p.log.Warn().Str("analyst", role.ID).Msg("analyst timed out, degrading to fallback")
		return fallbackOpinion(role.ID, callCtx.Err())
	case out := <-ch:
		if out.err != nil {
			p.log.Warn().Str("analyst", role.ID).Err(out.err).Msg("analyst failed, degrading to fallback")
			return fallbackOpinion(role.ID, out.err)
		}
		out.op.AnalystID = role.ID
		if err := out.op.Validate(); err != nil {
			p.log.Warn().Str("analyst", role.ID).Err(err).Msg("analyst returned invalid opinion, coercing to fallback")
			return fallbackOpinion(role.ID, err)
		}
		return out.op
	}
}
