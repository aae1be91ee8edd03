// Package retry provides bounded retry with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff describes an exponential backoff curve.
//
// The delay before attempt n (1-based) is Initial * Multiplier^(n-1), capped
// at Max, with a symmetric random jitter of +-Jitter applied on top. Jitter
// keeps many operations retrying against the same stalled backend from
// synchronizing into thundering herds.
type Backoff struct {
	Initial    time.Duration // Delay before the first retry
	Max        time.Duration // Upper bound on any single delay
	Multiplier float64       // Growth factor between retries
	Jitter     float64       // Jitter fraction in [0, 1]
}

// Default returns the backoff curve used when the caller configures none.
func Default() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Delay returns the wait before the given 1-based retry attempt.
// Attempts below 1 are treated as 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if wait > float64(b.Max) {
		wait = float64(b.Max)
	}

	if b.Jitter > 0 {
		wait += wait * b.Jitter * (rand.Float64()*2 - 1)
	}
	if wait < 0 {
		wait = 0
	}

	return time.Duration(wait)
}

// transientError marks an error as worth retrying.
type transientError struct {
	err error
}

func (e transientError) Error() string {
	return e.err.Error()
}

func (e transientError) Unwrap() error {
	return e.err
}

// Transient wraps an error to mark it as retryable by Do.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// Do runs fn up to maxAttempts times, sleeping along the backoff curve
// between attempts. Non-transient errors abort immediately; context
// cancellation aborts between attempts and during waits.
func Do(ctx context.Context, b Backoff, maxAttempts int, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}

	return lastErr
}
