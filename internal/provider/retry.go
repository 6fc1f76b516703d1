package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy is the single central retry object used for every provider
// call, replacing the ad-hoc retries the teacher scattered across
// internal/exchange. Exponential backoff with jitter, classification-driven.
type RetryPolicy struct {
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy matches spec.md §4.1: up to 3 attempts, base 250ms, cap
// 4s, ±20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseBackoff:    250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		JitterFraction: 0.2,
	}
}

// Operation is one attempt at a provider call.
type Operation func(ctx context.Context) error

// Run executes op with exponential backoff, honoring RateLimitedError's
// RetryAfter and failing fast on non-retryable classifications.
func (p RetryPolicy) Run(ctx context.Context, providerID string, op Operation) error {
	backoff := p.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("provider %s: retry aborted: %w", providerID, ctx.Err())
		default:
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		retry, delay := classify(err)
		if !retry {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := backoff
		if delay > 0 {
			wait = delay
		} else {
			wait = jitter(backoff, p.JitterFraction)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("provider %s: retry aborted during backoff: %w", providerID, ctx.Err())
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return fmt.Errorf("provider %s: all %d attempts failed: %w", providerID, p.MaxAttempts, lastErr)
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	delta := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
