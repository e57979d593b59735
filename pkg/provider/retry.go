package provider

import (
	"context"
	"fmt"
	"time"
)

// Default retry policy values.
const (
	DefaultRetryAttempts = 4
	DefaultRetryBase     = 500 * time.Millisecond
	DefaultRetryMax      = 8 * time.Second
)

// RetryPolicy bounds retries of transient provider failures. Validation
// errors are never retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Base is the initial backoff; it doubles per attempt up to Max.
	Base time.Duration

	// Max caps the backoff between attempts.
	Max time.Duration
}

// DefaultRetryPolicy returns the standard bounded backoff policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: DefaultRetryAttempts,
		Base:     DefaultRetryBase,
		Max:      DefaultRetryMax,
	}
}

// Retry runs fn, retrying with exponential backoff while the returned error
// is transient. After the attempt budget is exhausted the last error is
// returned wrapped, so callers escalate it as an apply failure.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.Base
	if backoff <= 0 {
		backoff = DefaultRetryBase
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if policy.Max > 0 && backoff > policy.Max {
			backoff = policy.Max
		}
	}

	if IsTransient(err) {
		return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
	}
	return err
}
