// Package retry retries a single transient operation, such as one HTTP
// round trip, with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. Zero disables retrying.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps each wait. Zero means no cap.
	MaxBackoff time.Duration
}

// DefaultPolicy mirrors a transport configured with three retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Operation is retried until it returns nil, a permanent error, or the
// policy is exhausted.
type Operation func(ctx context.Context) error

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op, retrying failures according to policy. The returned error
// wraps the last failure, unwrapped from Permanent.
func Do(ctx context.Context, policy Policy, op Operation) error {
	var attempt int

	for {
		attempt++

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt > policy.MaxRetries {
			if policy.MaxRetries == 0 {
				return err
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(backoff(attempt, policy))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}

// backoff returns the wait after the given failed attempt:
// InitialBackoff * 2^(attempt-1), capped by MaxBackoff.
func backoff(attempt int, policy Policy) time.Duration {
	if attempt < 1 || policy.InitialBackoff <= 0 {
		return 0
	}
	d := policy.InitialBackoff
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
		if policy.MaxBackoff > 0 && d >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	if policy.MaxBackoff > 0 && d > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return d
}
