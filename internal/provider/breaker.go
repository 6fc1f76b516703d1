package provider

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Health breaker settings. A provider that fails enough calls within the
// counting interval trips open for OpenTimeout; mark_unhealthy forces a trip
// directly rather than waiting for ReadyToTrip to observe failures.
const (
	MinRequests     = 3
	FailureRatio    = 0.6
	HalfOpenMaxReqs = 2
	CountInterval   = 30 * time.Second
)

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

type breakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

func initBreakerMetrics() *breakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "provider_health_state",
				Help: "Provider circuit breaker state (0=healthy/closed, 1=unhealthy/open, 2=probing/half_open)",
			}, []string{"provider", "capability"}),
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Total provider calls observed by the health breaker",
			}, []string{"provider", "capability", "result"}),
		}
	})
	return globalBreakerMetrics
}

// healthKey identifies one (provider, capability) breaker.
type healthKey struct {
	providerID string
	capability Capability
}

// healthEntry pairs a breaker with the TTL it was last built with, so
// setTTL can tell whether a requested ttl actually requires rebuilding the
// breaker.
type healthEntry struct {
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// healthTable is the Registry's guarded health state: one gobreaker instance
// per (provider, capability), with a default TTL used to honor mark_unhealthy.
//
// gobreaker.Settings.Timeout is fixed at construction time — a
// CircuitBreaker has no way to reconfigure it afterward. Since ordinary
// provider calls lazily create a breaker with the registry's hardcoded
// default TTL (see registry.go's unhealthyTTL) well before any
// mark_unhealthy call, a later mark_unhealthy(id, reason, ttl) with a
// different ttl would silently keep the breaker's original Timeout unless
// the table rebuilds the breaker itself. setTTL does that rebuild.
type healthTable struct {
	mu      sync.RWMutex
	entries map[healthKey]*healthEntry
	metrics *breakerMetrics
}

func newHealthTable() *healthTable {
	return &healthTable{
		entries: make(map[healthKey]*healthEntry),
		metrics: initBreakerMetrics(),
	}
}

func (h *healthTable) breakerFor(key healthKey, ttl time.Duration) *gobreaker.CircuitBreaker {
	h.mu.RLock()
	e, ok := h.entries[key]
	h.mu.RUnlock()
	if ok {
		return e.breaker
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok = h.entries[key]; ok {
		return e.breaker
	}
	return h.newBreakerLocked(key, ttl)
}

// setTTL returns the breaker for key, rebuilding it with a fresh Timeout of
// ttl when the existing breaker (if any) was built with a different one.
// The rebuilt breaker starts with a clean Counts, which is harmless here:
// markUnhealthy immediately feeds it synthetic failures to force it open.
func (h *healthTable) setTTL(key healthKey, ttl time.Duration) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[key]; ok && e.ttl == ttl {
		return e.breaker
	}
	return h.newBreakerLocked(key, ttl)
}

// newBreakerLocked constructs and stores a new breaker for key with Timeout
// ttl, discarding any prior entry. Callers must hold h.mu.
func (h *healthTable) newBreakerLocked(key healthKey, ttl time.Duration) *gobreaker.CircuitBreaker {
	metrics := h.metrics
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key.providerID + ":" + string(key.capability),
		MaxRequests: HalfOpenMaxReqs,
		Interval:    CountInterval,
		Timeout:     ttl,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.state.WithLabelValues(key.providerID, string(key.capability)).Set(stateValue(to))
		},
	})
	h.entries[key] = &healthEntry{breaker: b, ttl: ttl}
	return b
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// healthy reports whether the breaker for (provider, capability) currently
// allows calls (closed or half-open), without executing one.
func (h *healthTable) healthy(key healthKey) bool {
	h.mu.RLock()
	e, ok := h.entries[key]
	h.mu.RUnlock()
	if !ok {
		return true
	}
	return e.breaker.State() != gobreaker.StateOpen
}

// markUnhealthy forces the breaker open for ttl by feeding it a synthetic
// failing request, matching mark_unhealthy(id, reason, ttl) in spec. It
// always rebuilds the breaker's Timeout to ttl first (via setTTL) rather
// than reusing whatever breaker ordinary calls may have already created
// with the registry's default TTL.
func (h *healthTable) markUnhealthy(key healthKey, ttl time.Duration) {
	b := h.setTTL(key, ttl)
	for i := uint32(0); i < MinRequests; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, errForcedUnhealthy })
	}
	h.metrics.requests.WithLabelValues(key.providerID, string(key.capability), "forced_unhealthy").Inc()
}

// call runs op through key's breaker (an open breaker rejects it without
// running op), then reports the outcome to Prometheus.
func (h *healthTable) call(key healthKey, ttl time.Duration, op func() error) error {
	b := h.breakerFor(key, ttl)
	_, err := b.Execute(func() (interface{}, error) { return nil, op() })
	result := "success"
	if err != nil {
		result = "failure"
	}
	h.metrics.requests.WithLabelValues(key.providerID, string(key.capability), result).Inc()
	return err
}

var errForcedUnhealthy = &TransientError{Detail: "marked unhealthy by registry"}
