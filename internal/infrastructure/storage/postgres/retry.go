package postgres

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy bounds the transaction coordinator's retry loop for transient
// failures (serialization conflicts, deadlocks).
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; later delays
	// grow exponentially from it.
	BaseDelay time.Duration
}

var (
	defaultPolicyMu sync.RWMutex
	defaultPolicy   = RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
	}
)

// DefaultRetryPolicy returns the current process-wide retry policy.
func DefaultRetryPolicy() RetryPolicy {
	defaultPolicyMu.RLock()
	defer defaultPolicyMu.RUnlock()
	return defaultPolicy
}

// SetDefaultRetryPolicy merges the non-zero fields of p into the
// process-wide default. The change applies to transactions started
// afterwards; a retry loop already in progress keeps the policy it
// snapshotted at its start.
func SetDefaultRetryPolicy(p RetryPolicy) {
	defaultPolicyMu.Lock()
	defer defaultPolicyMu.Unlock()
	if p.MaxAttempts > 0 {
		defaultPolicy.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		defaultPolicy.BaseDelay = p.BaseDelay
	}
}

// backoffDelay returns the jittered delay after a failed attempt (1-based).
// The exponential floor plus a jitter below one doubling keeps successive
// delays strictly increasing.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Millisecond
	}
	floor := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(floor)/2 + 1))
	return floor + jitter
}

// sleepBackoff waits out the backoff delay, honoring context cancellation.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	timer := time.NewTimer(backoffDelay(base, attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
