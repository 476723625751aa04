package llmclient

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry executes fn under the configured policy. Only retryable errors are
// retried; KindUnknown is retried at most once regardless of MaxRetries. A
// rate-limit error carrying a Retry-After hint uses that delay instead of the
// backoff schedule, unless the hint exceeds MaxDelay, in which case the error
// surfaces immediately. On exhaustion the last classified failure is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	unknownRetries := 0
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		pe, _ := err.(*ProviderError)
		if pe != nil && pe.Kind == KindUnknown {
			if unknownRetries >= 1 {
				return zero, err
			}
			unknownRetries++
		}

		delay := policy.Delay(attempt)
		if pe != nil && pe.Kind == KindRateLimited && pe.RetryAfter != nil {
			hinted := time.Duration(*pe.RetryAfter * float64(time.Second))
			if hinted > time.Duration(policy.MaxDelay*float64(time.Second)) {
				return zero, err
			}
			delay = hinted
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
