package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/config"
	"github.com/marketcycle/orchestrator/internal/market"
)

func syntheticSeries(n int) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := decimal.NewFromInt(30000)
	for i := 0; i < n; i++ {
		open := start.Add(time.Duration(i) * time.Hour)
		close := open.Add(time.Hour)
		price = price.Add(decimal.NewFromInt(int64(i % 3)))
		candles[i] = market.Candle{
			OpenTime:  open,
			Open:      price,
			High:      price.Add(decimal.NewFromInt(10)),
			Low:       price.Sub(decimal.NewFromInt(10)),
			Close:     price,
			Volume:    decimal.NewFromInt(100),
			CloseTime: close,
		}
	}
	return candles
}

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pairs: []config.PairConfig{{Base: "BTC", Quote: "USD", Interval: "1h"}},
		Providers: []config.ProviderConfig{
			{ID: "replay", Role: "primary", Capabilities: []string{"candles", "ticker", "depth"}},
		},
		Analysts: []config.AnalystConfig{
			{ID: "trend", Weight: 1.0, SourceConfig: map[string]interface{}{"mcp_command": "analyst-server"}},
		},
		Combiner: config.CombinerConfig{ThetaBuy: 0.15, ThetaSell: 0.15, FallbackPenalty: 0.5},
		Guards: config.GuardsConfig{
			ExposureCapQuote: 10000, PerAssetCapPct: 0.25, DrawdownPausePct: 0.10,
			CooldownSec: 0, VolUpperPct: 50.0,
		},
		Sizing: config.SizingConfig{
			BaseNotionalQuote: 100, MinQuote: 10, MaxQuote: 500,
			ConfidenceMultiplier: 1.0, VolFloor: 0.1, VolCap: 10.0, VolSensitivity: 1.0,
		},
		Journal: config.JournalConfig{Path: t.TempDir() + "/journal.jsonl", FsyncEachRecord: false},
	}
}

func TestRunReplaysEveryCandleAsOneCycle(t *testing.T) {
	cfg := testAppConfig(t)
	pair := market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h}
	series := map[market.Pair][]market.Candle{pair: syntheticSeries(5)}

	report, err := Run(context.Background(), Config{
		App:        cfg,
		ProviderID: "replay",
		Series:     series,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, report.Records, 5)

	for i, rec := range report.Records {
		assert.Equal(t, "BTC/USD", rec.Pair)
		assert.Equal(t, series[pair][i].CloseTime.UTC().Format(time.RFC3339), rec.Trigger.FireTime)
		assert.Equal(t, "SCHEDULED", rec.Trigger.Cause)
	}
}

func TestRunSkipsPairWithNoConfiguredSeries(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Pairs = append(cfg.Pairs, config.PairConfig{Base: "ETH", Quote: "USD", Interval: "1h"})
	btcPair := market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h}
	series := map[market.Pair][]market.Candle{btcPair: syntheticSeries(3)}

	report, err := Run(context.Background(), Config{
		App:        cfg,
		ProviderID: "replay",
		Series:     series,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, report.Records, 3)
}

func TestReplayProviderAdvanceStopsAtSeriesEnd(t *testing.T) {
	pair := market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h}
	series := syntheticSeries(2)
	p := NewReplayProvider("replay", map[market.Pair][]market.Candle{pair: series})

	assert.True(t, p.Advance(pair))
	assert.False(t, p.Advance(pair))
}

func TestReplayProviderDepthIsInternallyConsistent(t *testing.T) {
	pair := market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h}
	series := syntheticSeries(1)
	p := NewReplayProvider("replay", map[market.Pair][]market.Candle{pair: series})

	depth, err := p.FetchDepth(context.Background(), pair, 3)
	require.NoError(t, err)
	require.NoError(t, depth.Validate())

	ticker, err := p.FetchTicker(context.Background(), pair)
	require.NoError(t, err)
	require.NoError(t, ticker.Validate())
}
