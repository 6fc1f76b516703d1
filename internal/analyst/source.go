package analyst

import (
	"context"
	"time"

	"github.com/marketcycle/orchestrator/internal/market"
)

// RoleConfig configures one analyst slot.
type RoleConfig struct {
	ID          string
	Weight      float64
	Timeout     time.Duration
	SourceConfig map[string]any
}

// Source is the collaborator contract an analyst role calls to produce its
// opinion — typically an LLM client, matching the teacher's internal/llm
// LLMClient shape (Complete/CompleteWithRetry/ParseJSONResponse) so a real
// implementation can be backed by an HTTP LLM client or an MCP tool call.
// The prompt text and model choice are the collaborator's concern, not the
// core's.
type Source interface {
	Opine(ctx context.Context, snap market.MarketSnapshot, role RoleConfig) (Opinion, error)
}
