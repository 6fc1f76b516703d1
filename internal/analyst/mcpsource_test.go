package analyst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/market"
	"github.com/shopspring/decimal"
)

func TestMCPSourceConfigFrom(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    MCPSourceConfig
		wantErr bool
	}{
		{
			name: "stdio command with args and explicit tool",
			raw: map[string]any{
				"mcp_command": "analyst-server",
				"mcp_args":    []any{"--mode", "live"},
				"mcp_tool":    "opine",
			},
			want: MCPSourceConfig{Command: "analyst-server", Args: []string{"--mode", "live"}, ToolName: "opine"},
		},
		{
			name: "url transport defaults tool name to analyze",
			raw:  map[string]any{"mcp_url": "http://localhost:9000/sse"},
			want: MCPSourceConfig{URL: "http://localhost:9000/sse", ToolName: "analyze"},
		},
		{
			name:    "neither command nor url is an error",
			raw:     map[string]any{"mcp_tool": "analyze"},
			wantErr: true,
		},
		{
			name:    "non-string arg entries are rejected",
			raw:     map[string]any{"mcp_command": "x", "mcp_args": []any{"--ok", 7}},
			wantErr: true,
		},
		{
			name:    "mcp_args must be a list",
			raw:     map[string]any{"mcp_command": "x", "mcp_args": "not-a-list"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mcpSourceConfigFrom(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataQualityFor(t *testing.T) {
	assert.Equal(t, QualityFull, dataQualityFor(market.QualityFull))
	assert.Equal(t, QualityPartial, dataQualityFor(market.QualityPartial))
}

func TestSnapshotArgsCompactsStatsNotCandles(t *testing.T) {
	snap := market.MarketSnapshot{
		Pair:    market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h},
		Quality: market.QualityFull,
		Candles: []market.Candle{
			{Close: decimal.NewFromInt(100)},
			{Close: decimal.NewFromInt(101)},
		},
		Ticker: market.Ticker{
			Last: decimal.NewFromInt(101), Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(102),
			Volume24h: decimal.NewFromInt(5000),
		},
		Depth: market.DepthLevels{
			Bids: []market.DepthLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
			Asks: []market.DepthLevel{{Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(1)}},
		},
	}

	args := snapshotArgs(snap)
	assert.Equal(t, "BTC/USD", args["pair"])
	assert.Equal(t, "101", args["last"])
	assert.Equal(t, "100", args["best_bid"])
	assert.Equal(t, "102", args["best_ask"])
	closes, ok := args["closes"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"100", "101"}, closes)
	assert.NotContains(t, args, "funding_rate")
}

func TestSnapshotArgsIncludesDerivativesWhenPresent(t *testing.T) {
	snap := market.MarketSnapshot{
		Pair: market.Pair{Base: "BTC", Quote: "USD", Interval: market.Interval1h},
		Derivatives: &market.DerivativesFact{
			FundingRate:  decimal.NewFromFloat(0.0001),
			OpenInterest: decimal.NewFromInt(1000),
			Basis:        decimal.NewFromFloat(0.02),
		},
	}

	args := snapshotArgs(snap)
	assert.Equal(t, "0.0001", args["funding_rate"])
	assert.Equal(t, "1000", args["open_interest"])
}

func TestNewMCPSourceRejectsRoleWithNoTransport(t *testing.T) {
	_, err := NewMCPSource("test", "0.0.0", []RoleConfig{{ID: "r1", SourceConfig: map[string]any{}}})
	require.Error(t, err)
}

func TestNewMCPSourceBuildsOneConfigPerRole(t *testing.T) {
	roles := []RoleConfig{
		{ID: "r1", SourceConfig: map[string]any{"mcp_command": "server-a"}},
		{ID: "r2", SourceConfig: map[string]any{"mcp_url": "http://localhost:9001/sse"}},
	}
	src, err := NewMCPSource("test", "0.0.0", roles)
	require.NoError(t, err)
	require.Len(t, src.configs, 2)
	assert.Equal(t, "server-a", src.configs["r1"].Command)
	assert.Equal(t, "http://localhost:9001/sse", src.configs["r2"].URL)
}

func TestMCPSourceOpineWithoutConnectedSessionErrors(t *testing.T) {
	src, err := NewMCPSource("test", "0.0.0", []RoleConfig{
		{ID: "r1", SourceConfig: map[string]any{"mcp_command": "server-a"}},
	})
	require.NoError(t, err)

	_, err = src.Opine(context.Background(), market.MarketSnapshot{}, RoleConfig{ID: "r1"})
	require.Error(t, err)
}
