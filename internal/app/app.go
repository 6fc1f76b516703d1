// Package app is the explicit composition root: it turns a config.Config
// into one fully wired Orchestrator per configured pair, sharing a single
// Provider Registry, Decision Journal, and Scheduler between them. It
// replaces the teacher's package-level singletons with state built once in
// main (or a test) and threaded through, per spec.md §9's "global
// configuration and singletons -> explicit composition" design note.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marketcycle/orchestrator/internal/analyst"
	"github.com/marketcycle/orchestrator/internal/config"
	"github.com/marketcycle/orchestrator/internal/decision"
	"github.com/marketcycle/orchestrator/internal/guard"
	"github.com/marketcycle/orchestrator/internal/journal"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/orchestrator"
	"github.com/marketcycle/orchestrator/internal/portfolio"
	"github.com/marketcycle/orchestrator/internal/provider"
	"github.com/marketcycle/orchestrator/internal/scheduler"
	"github.com/marketcycle/orchestrator/internal/sizing"
)

// Providers supplies the concrete market-data collaborators, keyed by the
// provider id named in configuration. The core never talks to an exchange
// directly (spec.md §1); a live deployment wires real connectors here, and
// pkg/backtest wires its simulated replay provider the same way.
type Providers map[string]provider.Provider

// App is every collaborator wired from one Config: the shared Provider
// Registry, Decision Journal, Portfolio view, Scheduler, and one
// Orchestrator per configured pair.
type App struct {
	Config        *config.Config
	Registry      *provider.Registry
	Journal       *journal.Journal
	Portfolio     portfolio.Provider
	Scheduler     *scheduler.Scheduler
	Pairs         []market.Pair
	Orchestrators map[market.Pair]*orchestrator.Orchestrator
	MCPSource     *analyst.MCPSource // nil when no analyst role configures an MCP collaborator

	log zerolog.Logger
}

// New wires an App from cfg. portfolioProvider is the external
// collaborator the guard chain and sizer read portfolio state from; pass
// portfolio.NewFake for tests, backtests, or a deployment with no live
// execution collaborator wired yet.
func New(cfg *config.Config, impls Providers, portfolioProvider portfolio.Provider, log zerolog.Logger) (*App, error) {
	registry := buildRegistry(cfg, impls, log)

	j, err := journal.Open(journal.Config{Path: cfg.Journal.Path, FsyncEachRecord: cfg.Journal.FsyncEachRecord}, log)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	mcpSource, err := buildMCPSource(cfg)
	if err != nil {
		j.Close()
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Registry:  registry,
		Journal:   j,
		Portfolio: portfolioProvider,
		MCPSource: mcpSource,
		log:       log.With().Str("component", "app").Logger(),
	}

	for _, ac := range cfg.Analysts {
		config.NewAnalystLogger(ac.ID).Info().Float64("weight", ac.Weight).Msg("analyst role configured")
	}

	cycles := make(map[market.Pair]*orchestrator.Orchestrator, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		pair := market.Pair{Base: pc.Base, Quote: pc.Quote, Interval: market.Interval(pc.Interval)}
		if err := pair.Validate(); err != nil {
			j.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		orc, err := a.buildPairOrchestrator(pair)
		if err != nil {
			j.Close()
			return nil, err
		}
		cycles[pair] = orc
		a.Pairs = append(a.Pairs, pair)
	}
	a.Orchestrators = cycles

	sched := scheduler.New(multiCycle(cycles), log)
	for _, pair := range a.Pairs {
		if err := sched.AddPair(pair); err != nil {
			j.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	a.Scheduler = sched
	return a, nil
}

// RunCycleAt drives one pair's Orchestrator directly with an explicit fire
// time, bypassing the Scheduler's wall-clock trigger. pkg/backtest uses
// this to replay a historical candle series, where the trigger's fire_time
// must match the simulated clock, not time.Now().
func (a *App) RunCycleAt(ctx context.Context, pair market.Pair, fireTime time.Time, cause scheduler.Cause) error {
	orc, ok := a.Orchestrators[pair]
	if !ok {
		return fmt.Errorf("app: pair %s is not configured", pair)
	}
	orc.Run(ctx, scheduler.Trigger{Pair: pair, FireTime: fireTime, Cause: cause})
	return nil
}

// Connect opens the MCP collaborator sessions, when any analyst role needs
// one. Must be called before the Scheduler is started.
func (a *App) Connect(ctx context.Context) error {
	if a.MCPSource == nil {
		return nil
	}
	if err := a.MCPSource.Connect(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler, closes analyst collaborator sessions, and
// closes the journal, in that order so no cycle writes after the journal
// closes.
func (a *App) Shutdown() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.MCPSource != nil {
		if err := a.MCPSource.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing analyst MCP sessions")
		}
	}
	if err := a.Journal.Close(); err != nil {
		a.log.Warn().Err(err).Msg("error closing journal")
	}
}

// PairHealth reports, for every configured pair, how many providers are
// currently healthy for the CANDLES capability — the data every cycle needs
// first. It satisfies metrics.Reporter structurally, so the metrics server's
// /health endpoint can surface this orchestrator's actual degraded-vs-nominal
// state instead of a generic liveness stub.
func (a *App) PairHealth() map[string]int {
	out := make(map[string]int, len(a.Pairs))
	for _, p := range a.Pairs {
		out[p.String()] = len(a.Registry.ProvidersFor(provider.CapabilityCandles))
	}
	return out
}

// PairByName resolves a "BASE/QUOTE" argument (as given on the CLI) against
// the configured pairs.
func (a *App) PairByName(name string) (market.Pair, error) {
	for _, p := range a.Pairs {
		if p.String() == name {
			return p, nil
		}
	}
	return market.Pair{}, fmt.Errorf("app: pair %q is not configured", name)
}

// multiCycle dispatches a scheduler.Trigger to the Orchestrator registered
// for its pair; one Scheduler instance is shared across every configured
// pair, so the Cycle it drives must fan out by pair itself.
type multiCycle map[market.Pair]*orchestrator.Orchestrator

func (m multiCycle) Run(ctx context.Context, t scheduler.Trigger) {
	orc, ok := m[t.Pair]
	if !ok {
		return
	}
	orc.Run(ctx, t)
}

func buildRegistry(cfg *config.Config, impls Providers, log zerolog.Logger) *provider.Registry {
	configs := make([]provider.Config, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		supports := make(map[provider.Capability]bool, len(pc.Capabilities))
		for _, c := range pc.Capabilities {
			supports[provider.Capability(c)] = true
		}
		role := provider.RoleFallback
		if pc.Role == "primary" {
			role = provider.RolePrimary
		}
		config.NewProviderLogger(pc.ID).Info().
			Str("role", string(role)).
			Int("capabilities", len(pc.Capabilities)).
			Msg("provider configured")
		configs = append(configs, provider.Config{
			ID:         pc.ID,
			Role:       role,
			BaseURL:    pc.BaseURL,
			AuthEnvKey: pc.AuthEnvKey,
			Supports:   supports,
		})
	}
	return provider.New(configs, impls, provider.DefaultRetryPolicy(), log)
}

// buildMCPSource collects every analyst role whose source_config names an
// MCP collaborator (mcp_command or mcp_url) into one shared MCPSource. A
// deployment with no MCP-backed role configured gets a nil source, which
// buildPairOrchestrator then reports as a wiring error rather than
// silently running with no opinions.
func buildMCPSource(cfg *config.Config) (*analyst.MCPSource, error) {
	var mcpRoles []analyst.RoleConfig
	for _, ac := range cfg.Analysts {
		if ac.SourceConfig["mcp_command"] != nil || ac.SourceConfig["mcp_url"] != nil {
			mcpRoles = append(mcpRoles, analyst.RoleConfig{
				ID:           ac.ID,
				Weight:       ac.Weight,
				Timeout:      ac.AnalystTimeout(),
				SourceConfig: ac.SourceConfig,
			})
		}
	}
	if len(mcpRoles) == 0 {
		return nil, nil
	}
	source, err := analyst.NewMCPSource("marketcycle-orchestrator", config.Version, mcpRoles)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return source, nil
}

func (a *App) buildPairOrchestrator(pair market.Pair) (*orchestrator.Orchestrator, error) {
	cfg := a.Config
	assembler := market.NewAssembler(a.Registry, market.DefaultAssemblerConfig(), config.NewLogger("market_assembler"))

	roles := make([]analyst.RoleConfig, 0, len(cfg.Analysts))
	weights := make(map[string]float64, len(cfg.Analysts))
	for _, ac := range cfg.Analysts {
		roles = append(roles, analyst.RoleConfig{
			ID:           ac.ID,
			Weight:       ac.Weight,
			Timeout:      ac.AnalystTimeout(),
			SourceConfig: ac.SourceConfig,
		})
		weights[ac.ID] = ac.Weight
	}
	if a.MCPSource == nil {
		return nil, fmt.Errorf("app: pair %s: no analyst role configures an MCP collaborator (set source_config.mcp_command or mcp_url)", pair)
	}
	pool := analyst.NewPool(roles, a.MCPSource, config.NewLogger("analyst_pool"))

	combinerCfg := decision.Config{
		Weights:         weights,
		ThetaBuy:        cfg.Combiner.ThetaBuy,
		ThetaSell:       cfg.Combiner.ThetaSell,
		FallbackPenalty: cfg.Combiner.FallbackPenalty,
	}
	if err := combinerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: pair %s: %w", pair, err)
	}
	combiner := decision.NewCombiner(combinerCfg)

	guards := []guard.Guard{
		guard.NewExposureGuard(decimal.NewFromFloat(cfg.Guards.ExposureCapQuote)),
		guard.NewConcentrationGuard(decimal.NewFromFloat(cfg.Guards.PerAssetCapPct)),
		guard.NewDrawdownGuard(decimal.NewFromFloat(cfg.Guards.DrawdownPausePct)),
		guard.NewCooldownGuard(cfg.Guards.CooldownInterval()),
	}
	volGuard := guard.NewVolatilityGuard(cfg.Guards.VolUpperPct)

	sizingCfg := sizing.Config{
		BaseNotionalQuote:    decimal.NewFromFloat(cfg.Sizing.BaseNotionalQuote),
		MinQuote:             decimal.NewFromFloat(cfg.Sizing.MinQuote),
		MaxQuote:             decimal.NewFromFloat(cfg.Sizing.MaxQuote),
		ConfidenceMultiplier: cfg.Sizing.ConfidenceMultiplier,
		VolFloor:             cfg.Sizing.VolFloor,
		VolCap:               cfg.Sizing.VolCap,
		VolSensitivity:       cfg.Sizing.VolSensitivity,
	}
	if err := sizingCfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: pair %s: %w", pair, err)
	}
	sizer := sizing.NewSizer(sizingCfg)

	return orchestrator.New(orchestrator.Config{
		Pair:      pair,
		Assembler: assembler,
		Pool:      pool,
		Combiner:  combiner,
		Guards:    guards,
		VolGuard:  volGuard,
		Sizer:     sizer,
		Portfolio: a.Portfolio,
		Journal:   a.Journal,
	}, config.NewLogger("orchestrator."+pair.String()))
}
