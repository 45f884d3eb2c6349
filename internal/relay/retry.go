package relay

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for failed relay requests.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first try.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Multiplier is the factor the delay grows by per attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to each delay
	// to spread out synchronized retries.
	Jitter float64
	// RetryableOn reports whether a status code should trigger a retry.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryConfig returns the retry policy used when Config.Retry is nil:
// three retries with exponential backoff from half a second, retrying on
// timeouts, rate limits and server errors.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
		RetryableOn: func(statusCode int) bool {
			switch statusCode {
			case http.StatusRequestTimeout, http.StatusTooManyRequests,
				http.StatusInternalServerError, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			default:
				return false
			}
		},
	}
}

// ShouldRetry reports whether the given attempt for the given status code
// should be retried.
func (r *RetryConfig) ShouldRetry(attempt, statusCode int) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	if r.RetryableOn == nil {
		return false
	}
	return r.RetryableOn(statusCode)
}

// Delay computes the backoff before retry number attempt, with jitter.
func (r *RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter > 0 {
		jitterAmount := delay * r.Jitter
		delay = delay - jitterAmount + rand.Float64()*2*jitterAmount
	}

	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay or until ctx is done.
func (r *RetryConfig) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
