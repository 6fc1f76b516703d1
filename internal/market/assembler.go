package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Registry is the subset of provider.Registry the assembler needs; declared
// here (not imported from internal/provider) so internal/market has no
// dependency on internal/provider — provider depends on market for its
// entity types, not the other way around.
type Registry interface {
	FetchCandles(ctx context.Context, pair Pair, limit int) ([]Candle, error)
	FetchTicker(ctx context.Context, pair Pair) (Ticker, error)
	FetchDepth(ctx context.Context, pair Pair, levels int) (DepthLevels, error)
	FetchDerivatives(ctx context.Context, pair Pair) (*DerivativesFact, error)
}

// AssemblerConfig configures per-component staleness budgets and candle
// window size.
type AssemblerConfig struct {
	CandleLookback int // number of candles to request/keep
	DepthLevels    int
	Staleness      StalenessBudget
	CacheTTL       time.Duration
}

func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		CandleLookback: 50,
		DepthLevels:    10,
		Staleness: StalenessBudget{
			Ticker: 5 * time.Second,
			Depth:  10 * time.Second,
		},
	}
}

// Assembler builds a single consistent MarketSnapshot per spec.md §4.2.
type Assembler struct {
	registry Registry
	cfg      AssemblerConfig
	cache    *snapshotCache
	log      zerolog.Logger
}

func NewAssembler(registry Registry, cfg AssemblerConfig, log zerolog.Logger) *Assembler {
	return &Assembler{
		registry: registry,
		cfg:      cfg,
		cache:    newSnapshotCache(cfg.CacheTTL),
		log:      log.With().Str("component", "market_assembler").Logger(),
	}
}

// Assemble builds a MarketSnapshot for (pair, T). Candles, ticker, and depth
// are required; derivatives are optional. If a required component fails
// validation or is unavailable, Assemble returns a *DataUnavailableError.
func (a *Assembler) Assemble(ctx context.Context, pair Pair, t time.Time) (MarketSnapshot, error) {
	if cached, ok := a.cache.get(pair, t); ok {
		return cached, nil
	}

	candleStaleness := a.cfg.Staleness.Candles
	if candleStaleness == 0 {
		d, err := pair.Interval.Duration()
		if err != nil {
			return MarketSnapshot{}, err
		}
		candleStaleness = d
	}

	candles, err := a.registry.FetchCandles(ctx, pair, a.cfg.CandleLookback)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if err := ValidateCandles(candles); err != nil {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "CANDLES", Reason: err.Error()}
	}
	lastCandle := candles[len(candles)-1]
	if t.Sub(lastCandle.CloseTime) > candleStaleness {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "CANDLES", Reason: "candles stale beyond budget"}
	}

	ticker, err := a.registry.FetchTicker(ctx, pair)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if err := ticker.Validate(); err != nil {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "TICKER", Reason: err.Error()}
	}
	if t.Sub(ticker.Timestamp) > a.cfg.Staleness.Ticker {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "TICKER", Reason: "ticker stale beyond budget"}
	}

	depth, err := a.registry.FetchDepth(ctx, pair, a.cfg.DepthLevels)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if err := depth.Validate(); err != nil {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "DEPTH", Reason: err.Error()}
	}
	if t.Sub(depth.Timestamp) > a.cfg.Staleness.Depth {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "DEPTH", Reason: "depth stale beyond budget"}
	}

	quality := QualityFull
	var derivs *DerivativesFact
	derivs, err = a.registry.FetchDerivatives(ctx, pair)
	if err != nil || derivs == nil {
		quality = QualityPartial
		derivs = nil
		if err != nil {
			a.log.Debug().Err(err).Str("pair", pair.String()).Msg("optional derivatives component omitted")
		}
	}

	tSnap := minTimestamp(lastCandle.CloseTime, ticker.Timestamp, depth.Timestamp)

	snap := MarketSnapshot{
		Pair:        pair,
		T:           t,
		TSnap:       tSnap,
		Candles:     candles,
		Ticker:      ticker,
		Depth:       depth,
		Derivatives: derivs,
		Quality:     quality,
	}
	if err := snap.Validate(); err != nil {
		return MarketSnapshot{}, &DataUnavailableError{Pair: pair, Capability: "SNAPSHOT", Reason: err.Error()}
	}

	a.cache.set(pair, snap, t)
	return snap, nil
}

func minTimestamp(ts ...time.Time) time.Time {
	min := ts[0]
	for _, t := range ts[1:] {
		if t.Before(min) {
			min = t
		}
	}
	return min
}
