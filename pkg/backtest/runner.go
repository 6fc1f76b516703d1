package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/app"
	"github.com/marketcycle/orchestrator/internal/config"
	"github.com/marketcycle/orchestrator/internal/journal"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/internal/portfolio"
	"github.com/marketcycle/orchestrator/internal/scheduler"
)

// Config is everything Run needs to replay a historical candle series
// through the live core: the same App configuration a live deployment
// would use, which configured provider id the replay data is bound to, and
// one candle series per configured pair.
type Config struct {
	App        *config.Config
	ProviderID string
	Series     map[market.Pair][]market.Candle
	Portfolio  *portfolio.Fake // nil uses a zeroed portfolio.Fake
}

// Report is the full set of journal records produced by a backtest run, in
// the order they were written (pair by pair, each pair's records in
// fire-time order) — the same JournalRecord schema a live deployment writes
// (spec.md §6), so analysis tooling never needs to special-case a backtest.
type Report struct {
	Records []journal.Record
}

// Run wires an App bound to a ReplayProvider for cfg.ProviderID, then steps
// every configured pair's replay cursor through its full candle series one
// candle at a time, driving the pair's Orchestrator directly via
// App.RunCycleAt with the candle's own close time as the cycle's fire_time
// — never time.Now(), so historical data never reads as stale.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) (*Report, error) {
	replay := NewReplayProvider(cfg.ProviderID, cfg.Series)

	portfolioProvider := cfg.Portfolio
	if portfolioProvider == nil {
		portfolioProvider = portfolio.NewFake(portfolio.State{})
	}

	application, err := app.New(cfg.App, app.Providers{cfg.ProviderID: replay}, portfolioProvider, log)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	defer application.Shutdown()

	if err := application.Connect(ctx); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	for _, pair := range application.Pairs {
		series, ok := cfg.Series[pair]
		if !ok || len(series) == 0 {
			log.Warn().Str("pair", pair.String()).Msg("backtest: no replay series configured, skipping pair")
			continue
		}
		if err := replayPair(ctx, application, replay, pair); err != nil {
			return nil, err
		}
	}

	records, err := journal.ReadSince(cfg.App.Journal.Path, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	return &Report{Records: records}, nil
}

func replayPair(ctx context.Context, application *app.App, replay *ReplayProvider, pair market.Pair) error {
	for {
		candle, err := replay.CurrentCloseTime(pair)
		if err != nil {
			return fmt.Errorf("backtest: %w", err)
		}
		if err := application.RunCycleAt(ctx, pair, candle.CloseTime, scheduler.CauseScheduled); err != nil {
			return fmt.Errorf("backtest: %w", err)
		}
		if !replay.Advance(pair) {
			return nil
		}
	}
}
