package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marketcycle/orchestrator/internal/market"
)

// MCPSourceConfig configures one analyst role's MCP collaborator connection.
// Populated from AnalystConfig.SourceConfig (mapstructure keys below),
// mirroring internal/agents/base.go's MCPServerConfig (command/args for a
// stdio-spawned server, url for an HTTP/SSE one).
type MCPSourceConfig struct {
	Command  string // stdio transport: process to spawn
	Args     []string
	URL      string // SSE transport: external server endpoint
	ToolName string // tool invoked for an opinion, e.g. "analyze"
}

func mcpSourceConfigFrom(raw map[string]any) (MCPSourceConfig, error) {
	var cfg MCPSourceConfig
	if v, ok := raw["mcp_command"].(string); ok {
		cfg.Command = v
	}
	if v, ok := raw["mcp_url"].(string); ok {
		cfg.URL = v
	}
	if v, ok := raw["mcp_tool"].(string); ok {
		cfg.ToolName = v
	}
	if raw["mcp_args"] != nil {
		args, ok := raw["mcp_args"].([]any)
		if !ok {
			return cfg, fmt.Errorf("analyst: mcp_args must be a list of strings")
		}
		for _, a := range args {
			s, ok := a.(string)
			if !ok {
				return cfg, fmt.Errorf("analyst: mcp_args entries must be strings")
			}
			cfg.Args = append(cfg.Args, s)
		}
	}
	if cfg.Command == "" && cfg.URL == "" {
		return cfg, fmt.Errorf("analyst: source_config needs mcp_command or mcp_url")
	}
	if cfg.ToolName == "" {
		cfg.ToolName = "analyze"
	}
	return cfg, nil
}

// MCPSource realizes the AnalystOpinionSource collaborator as an MCP tool
// call, grounded on internal/agents/base.go's BaseAgent.CallMCPTool
// (mcp.NewClient + mcp.ClientSession.CallTool over a stdio or SSE
// transport). One session is held per configured role and reused across
// cycles; the prompt/model realized by the tool is entirely the
// collaborator's concern, per spec.md §1.
type MCPSource struct {
	client   *mcp.Client
	sessions map[string]*mcp.ClientSession // role ID -> connected session
	configs  map[string]MCPSourceConfig
}

// NewMCPSource builds an MCPSource from the configured roles' source_config
// blocks. Connection is lazy: Connect must be called before the first Opine.
func NewMCPSource(name, version string, roles []RoleConfig) (*MCPSource, error) {
	configs := make(map[string]MCPSourceConfig, len(roles))
	for _, r := range roles {
		cfg, err := mcpSourceConfigFrom(r.SourceConfig)
		if err != nil {
			return nil, fmt.Errorf("analyst: role %s: %w", r.ID, err)
		}
		configs[r.ID] = cfg
	}
	return &MCPSource{
		client:   mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil),
		sessions: make(map[string]*mcp.ClientSession, len(roles)),
		configs:  configs,
	}, nil
}

// Connect opens one MCP session per configured role. Call once at startup,
// before the Analyst Pool begins dispatching cycles.
func (s *MCPSource) Connect(ctx context.Context) error {
	for roleID, cfg := range s.configs {
		var transport mcp.Transport
		switch {
		case cfg.URL != "":
			transport = &mcp.SSEClientTransport{Endpoint: cfg.URL}
		case cfg.Command != "":
			transport = &mcp.CommandTransport{Command: exec.CommandContext(ctx, cfg.Command, cfg.Args...)} // #nosec G204 -- command comes from operator-controlled config
		default:
			return fmt.Errorf("analyst: role %s has no transport configured", roleID)
		}
		session, err := s.client.Connect(ctx, transport, nil)
		if err != nil {
			return fmt.Errorf("analyst: role %s: connect: %w", roleID, err)
		}
		s.sessions[roleID] = session
	}
	return nil
}

// Close shuts down every connected session.
func (s *MCPSource) Close() error {
	var firstErr error
	for _, session := range s.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshotArgs compacts a MarketSnapshot into MCP tool call arguments: of
// the candle list only the close prices are forwarded, together with the
// ticker fields, the best bid/ask of the depth and, when present, the
// derivatives facts.
func snapshotArgs(snap market.MarketSnapshot) map[string]any {
	closes := snap.Closes()
	closeStrs := make([]string, len(closes))
	for i, c := range closes {
		closeStrs[i] = c.String()
	}
	args := map[string]any{
		"pair":        snap.Pair.String(),
		"interval":    string(snap.Pair.Interval),
		"t_snap":      snap.TSnap.UTC().Format(time.RFC3339),
		"quality":     string(snap.Quality),
		"closes":      closeStrs,
		"last":        snap.Ticker.Last.String(),
		"bid":         snap.Ticker.Bid.String(),
		"ask":         snap.Ticker.Ask.String(),
		"volume_24h":  snap.Ticker.Volume24h.String(),
	}
	if len(snap.Depth.Bids) > 0 {
		args["best_bid"] = snap.Depth.Bids[0].Price.String()
	}
	if len(snap.Depth.Asks) > 0 {
		args["best_ask"] = snap.Depth.Asks[0].Price.String()
	}
	if snap.Derivatives != nil {
		args["funding_rate"] = snap.Derivatives.FundingRate.String()
		args["open_interest"] = snap.Derivatives.OpenInterest.String()
		args["basis"] = snap.Derivatives.Basis.String()
	}
	return args
}

// mcpOpinion is the JSON shape a tool result's text content must decode
// into; forwarded straight onto Opinion by Opine.
type mcpOpinion struct {
	Signal     string `json:"signal"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Opine calls the role's configured tool and parses its text content as an
// opinion. Any failure here — missing session, tool error, malformed JSON,
// schema-invalid fields — is surfaced to the caller, which the Analyst Pool
// degrades to a FALLBACK opinion; Opine itself never fabricates a result.
func (s *MCPSource) Opine(ctx context.Context, snap market.MarketSnapshot, role RoleConfig) (Opinion, error) {
	session, ok := s.sessions[role.ID]
	if !ok {
		return Opinion{}, fmt.Errorf("analyst: no MCP session connected for role %s", role.ID)
	}
	cfg := s.configs[role.ID]

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      cfg.ToolName,
		Arguments: snapshotArgs(snap),
	})
	if err != nil {
		return Opinion{}, fmt.Errorf("analyst: role %s: tool call: %w", role.ID, err)
	}
	if result.IsError {
		return Opinion{}, fmt.Errorf("analyst: role %s: tool reported an error", role.ID)
	}
	if len(result.Content) == 0 {
		return Opinion{}, fmt.Errorf("analyst: role %s: tool returned no content", role.ID)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return Opinion{}, fmt.Errorf("analyst: role %s: tool content was not text", role.ID)
	}

	var parsed mcpOpinion
	if err := json.Unmarshal([]byte(text.Text), &parsed); err != nil {
		return Opinion{}, fmt.Errorf("analyst: role %s: malformed opinion JSON: %w", role.ID, err)
	}
	return Opinion{
		AnalystID:   role.ID,
		Signal:      Signal(parsed.Signal),
		Confidence:  parsed.Confidence,
		Reasoning:   parsed.Reasoning,
		ProducedAt:  time.Now().UTC(),
		DataQuality: dataQualityFor(snap.Quality),
	}, nil
}

// dataQualityFor maps the snapshot's own completeness onto the opinion's
// reported quality when the collaborator doesn't state one explicitly —
// an analyst fed a PARTIAL snapshot cannot claim FULL data quality.
func dataQualityFor(q market.SnapshotQuality) DataQuality {
	if q == market.QualityPartial {
		return QualityPartial
	}
	return QualityFull
}
