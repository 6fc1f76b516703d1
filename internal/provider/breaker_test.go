package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthTable_CallFailureTripsBreaker(t *testing.T) {
	h := newHealthTable()
	key := healthKey{providerID: "p1", capability: CapabilityCandles}

	for i := 0; i < MinRequests+1; i++ {
		_ = h.call(key, time.Minute, func() error { return &TransientError{ProviderID: "p1", Detail: "x"} })
	}
	assert.False(t, h.healthy(key))
}

func TestHealthTable_SuccessKeepsBreakerHealthy(t *testing.T) {
	h := newHealthTable()
	key := healthKey{providerID: "p2", capability: CapabilityTicker}

	for i := 0; i < 5; i++ {
		_ = h.call(key, time.Minute, func() error { return nil })
	}
	assert.True(t, h.healthy(key))
}

// Realistic ordering: ordinary calls create the breaker with the registry's
// default TTL well before any mark_unhealthy call. A later mark_unhealthy
// with a shorter ttl must still take effect, not be silently absorbed by
// the already-constructed breaker's original Timeout.
func TestHealthTable_MarkUnhealthyAfterCallsHonorsNewTTL(t *testing.T) {
	h := newHealthTable()
	key := healthKey{providerID: "p3", capability: CapabilityCandles}

	// A successful call builds the breaker with a long default TTL.
	_ = h.call(key, time.Hour, func() error { return nil })
	assert.True(t, h.healthy(key))

	h.markUnhealthy(key, 30*time.Millisecond)
	assert.False(t, h.healthy(key))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, h.healthy(key), "breaker should have half-opened after the short ttl, not the stale long one")
}
