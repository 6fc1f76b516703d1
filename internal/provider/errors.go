package provider

import (
	"fmt"
	"time"
)

// TransientError is a retryable failure (network blip, 5xx, etc.).
type TransientError struct {
	ProviderID string
	Detail     string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s: transient error: %s", e.ProviderID, e.Detail)
}

// RateLimitedError is retryable but must honor the server-suggested delay
// rather than the default backoff schedule.
type RateLimitedError struct {
	ProviderID string
	Delay      time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider %s: rate limited, retry after %s", e.ProviderID, e.Delay)
}

func (e *RateLimitedError) RetryAfter() time.Duration { return e.Delay }

// AuthError is not retryable; it should skip immediately to the next provider.
type AuthError struct {
	ProviderID string
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %s: auth error: %s", e.ProviderID, e.Detail)
}

// RegionBlockedError is not retryable; skip to the next provider.
type RegionBlockedError struct {
	ProviderID string
}

func (e *RegionBlockedError) Error() string {
	return fmt.Sprintf("provider %s: region blocked", e.ProviderID)
}

// PermanentError is not retryable; skip to the next provider.
type PermanentError struct {
	ProviderID string
	Detail     string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("provider %s: permanent error: %s", e.ProviderID, e.Detail)
}

// classify reports whether a call error should be retried against the same
// provider before failing over, and the rate-limit delay it carries, if any.
func classify(err error) (retry bool, delay time.Duration) {
	switch e := err.(type) {
	case *TransientError:
		return true, 0
	case *RateLimitedError:
		return true, e.Delay
	case *AuthError, *RegionBlockedError, *PermanentError:
		return false, 0
	default:
		// Unclassified errors are treated as transient: a collaborator's
		// provider implementation may return a plain error for a network blip.
		return true, 0
	}
}
