// Backtest Runner CLI
// Replays a historical candle series through the live decision core and
// reports the cycles it produced.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketcycle/orchestrator/internal/config"
	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/marketcycle/orchestrator/pkg/backtest"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	dataPath := flag.String("data", "", `path to a JSON file of {"BASE/QUOTE": [candle, ...]} historical candles, oldest first`)
	providerID := flag.String("provider", "", "configured provider id to bind the replay data to (defaults to the first configured provider)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	config.InitLogger("info", "console")
	logger := config.NewLogger("backtest")

	if *dataPath == "" {
		logger.Fatal().Msg("--data is required: a JSON file of historical candles keyed by pair")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	providerKey := *providerID
	if providerKey == "" && len(cfg.Providers) > 0 {
		providerKey = cfg.Providers[0].ID
	}
	if providerKey == "" {
		logger.Fatal().Msg("no provider configured to bind replay data to")
	}

	series, err := loadSeries(*dataPath, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load historical data")
	}

	report, err := backtest.Run(context.Background(), backtest.Config{
		App:        cfg,
		ProviderID: providerKey,
		Series:     series,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest run failed")
	}

	summarize(report)
}

// loadSeries reads a JSON document mapping "BASE/QUOTE" to a candle array
// and keeps only the series for pairs the loaded configuration names.
// market.Candle's fields (time.Time, shopspring/decimal) already carry
// standard JSON (un)marshaling, so no bespoke parsing is needed here.
func loadSeries(path string, cfg *config.Config) (map[market.Pair][]market.Candle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: read %s: %w", path, err)
	}
	var byPairName map[string][]market.Candle
	if err := json.Unmarshal(raw, &byPairName); err != nil {
		return nil, fmt.Errorf("backtest: parse %s: %w", path, err)
	}

	series := make(map[market.Pair][]market.Candle, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		pair := market.Pair{Base: pc.Base, Quote: pc.Quote, Interval: market.Interval(pc.Interval)}
		if candles, ok := byPairName[pair.String()]; ok {
			series[pair] = candles
		}
	}
	return series, nil
}

func summarize(report *backtest.Report) {
	var buys, sells, holds, vetoes int
	for _, r := range report.Records {
		switch r.Decision.Signal {
		case "BUY":
			buys++
		case "SELL":
			sells++
		default:
			holds++
		}
		if r.GuardOutcome.Result == "VETO" {
			vetoes++
		}
	}
	fmt.Printf("cycles=%d buy=%d sell=%d hold=%d guard_vetoes=%d\n", len(report.Records), buys, sells, holds, vetoes)
}
