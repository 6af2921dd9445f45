// Package resilience provides the backoff used by the Sending Process's
// fetch/send loops and the retry loop used by the storage HTTP client.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
)

// RetryableErrorChecker decides whether an error should trigger another
// attempt. WithRetry uses IsTransient when a Policy sets none.
type RetryableErrorChecker func(err error) bool

// Policy configures WithRetry's exponential backoff.
type Policy struct {
	MaxRetries   int // 0 = no retries, -1 = retry forever
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	ErrorChecker RetryableErrorChecker
}

// DefaultPolicy mirrors the storage client's default retry shape.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// IsTransient is the default RetryableErrorChecker: storage transient errors
// (transport failures and 5xx responses) are retryable, everything else
// (conflicts, config errors, other 4xx responses) is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient *errtypes.StorageTransient
	return errors.As(err, &transient)
}

// WithRetry runs operation until it succeeds, the policy's attempt budget is
// exhausted, or ctx is cancelled while waiting between attempts.
func WithRetry(ctx context.Context, policy Policy, operation func() error) error {
	checker := policy.ErrorChecker
	if checker == nil {
		checker = IsTransient
	}

	delay := policy.BaseDelay
	var lastErr error

	for attempt := 0; policy.MaxRetries < 0 || attempt <= policy.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !checker(err) {
			return err
		}
		if policy.MaxRetries >= 0 && attempt >= policy.MaxRetries {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = nextDelay(delay, policy)
	}

	return lastErr
}

func nextDelay(current time.Duration, policy Policy) time.Duration {
	next := time.Duration(float64(current) * policy.Multiplier)
	if policy.MaxDelay > 0 && next > policy.MaxDelay {
		next = policy.MaxDelay
	}
	return next
}
