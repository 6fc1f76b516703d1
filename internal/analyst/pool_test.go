package analyst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcycle/orchestrator/internal/market"
)

type fakeSource struct {
	opine func(ctx context.Context, role RoleConfig) (Opinion, error)
}

func (f *fakeSource) Opine(ctx context.Context, snap market.MarketSnapshot, role RoleConfig) (Opinion, error) {
	return f.opine(ctx, role)
}

func TestPool_PreservesConfiguredOrderRegardlessOfCompletionOrder(t *testing.T) {
	roles := []RoleConfig{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	src := &fakeSource{opine: func(ctx context.Context, role RoleConfig) (Opinion, error) {
		if role.ID == "a" {
			time.Sleep(20 * time.Millisecond)
		}
		return Opinion{Signal: SignalBuy, Confidence: 50}, nil
	}}
	pool := NewPool(roles, src, zerolog.Nop())

	ops := pool.Run(context.Background(), market.MarketSnapshot{})
	require.Len(t, ops, 3)
	assert.Equal(t, "a", ops[0].AnalystID)
	assert.Equal(t, "b", ops[1].AnalystID)
	assert.Equal(t, "c", ops[2].AnalystID)
}

func TestPool_TimeoutDegradesOnlyThatSlot(t *testing.T) {
	roles := []RoleConfig{
		{ID: "slow", Timeout: 10 * time.Millisecond},
		{ID: "fast", Timeout: time.Second},
	}
	src := &fakeSource{opine: func(ctx context.Context, role RoleConfig) (Opinion, error) {
		if role.ID == "slow" {
			<-ctx.Done()
			return Opinion{}, ctx.Err()
		}
		return Opinion{Signal: SignalBuy, Confidence: 70}, nil
	}}
	pool := NewPool(roles, src, zerolog.Nop())

	ops := pool.Run(context.Background(), market.MarketSnapshot{})
	require.Len(t, ops, 2)
	assert.Equal(t, QualityFallback, ops[0].DataQuality)
	assert.Equal(t, SignalHold, ops[0].Signal)
	assert.Equal(t, 0, ops[0].Confidence)
	assert.Equal(t, SignalBuy, ops[1].Signal)
}

func TestPool_ErrorDegradesToFallback(t *testing.T) {
	roles := []RoleConfig{{ID: "broken"}}
	src := &fakeSource{opine: func(ctx context.Context, role RoleConfig) (Opinion, error) {
		return Opinion{}, errors.New("source unavailable")
	}}
	pool := NewPool(roles, src, zerolog.Nop())

	ops := pool.Run(context.Background(), market.MarketSnapshot{})
	require.Len(t, ops, 1)
	assert.Equal(t, QualityFallback, ops[0].DataQuality)
}

func TestPool_InvalidOutputCoercedToFallback(t *testing.T) {
	roles := []RoleConfig{{ID: "bad-schema"}}
	src := &fakeSource{opine: func(ctx context.Context, role RoleConfig) (Opinion, error) {
		return Opinion{Signal: "MAYBE", Confidence: 200}, nil
	}}
	pool := NewPool(roles, src, zerolog.Nop())

	ops := pool.Run(context.Background(), market.MarketSnapshot{})
	require.Len(t, ops, 1)
	assert.Equal(t, QualityFallback, ops[0].DataQuality)
}
