package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultAttempts        = 3
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// Policy bounds a retried external call. Timeout applies to each attempt.
type Policy struct {
	Attempts        uint
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Attempts == 0 {
		p.Attempts = defaultAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	return p
}

// Do runs fn until it succeeds, the policy is exhausted, ctx ends, or
// retryable reports false for the returned error. A nil retryable retries
// every error.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	op := func() (T, error) {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		out, err := fn(attemptCtx)
		if err != nil && retryable != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}

	out, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(p.Attempts))
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return out, err
}
