package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/pkg/logger"
)

// RetryPolicy controls how many times an operation is attempted and how
// long to wait between attempts. Retryable decides whether a given error
// is worth another attempt; a nil Retryable retries everything.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// DefaultGatewayPolicy retries transient gateway failures with exponential backoff.
func DefaultGatewayPolicy(maxAttempts int, retryable func(err error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(500*time.Millisecond, 10*time.Second),
		Retryable:   retryable,
	}
}

// ExponentialBackoff doubles the base delay per attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(attempt-1)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// Run executes op until it succeeds, exhausts MaxAttempts, the error is
// classified non-retryable, or the context is canceled. The last error
// is returned unwrapped so callers can inspect it with errors.As.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(0)
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		logger.Warn(fmt.Sprintf("[Retry] Attempt %d/%d failed: %v (next in %v)", attempt, attempts, err, delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
