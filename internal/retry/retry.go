// Package retry provides a generic exponential-backoff wrapper around an
// arbitrary operation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks err as non-retryable: Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op, retrying on error up to retries additional times with an
// exponential delay starting at initialDelay and growing by multiplier.
// ctx cancellation stops further attempts. Returns the last error, or nil
// once op succeeds.
func Do(ctx context.Context, retries uint64, initialDelay time.Duration, multiplier float64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if initialDelay > 0 {
		b.InitialInterval = initialDelay
	}
	if multiplier > 0 {
		b.Multiplier = multiplier
	}
	b.MaxElapsedTime = 0 // bounded by retry count and ctx, not wall clock
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}
