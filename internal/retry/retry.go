// Package retry wraps eapache/go-resiliency's retrier with an attempt-counted
// policy: a fixed number of attempts, a delay between them and a predicate
// deciding which errors are worth another try.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eapache/go-resiliency/retrier"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Constant waits Delay between every pair of attempts.
	Constant Backoff = iota
	// Exponential doubles the wait after each attempt, starting at Delay.
	Exponential
)

// Policy describes how an operation is retried. The zero value makes a single
// attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first included.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay   time.Duration
	Backoff Backoff
	// Jitter randomizes each wait by up to this fraction (0 to 1).
	Jitter float64
	// Retryable reports whether an error may succeed on another attempt. A nil
	// predicate retries every error.
	Retryable func(error) bool
	// OnRetry, when set, is called before waiting for the next attempt.
	OnRetry func(attempt int, err error)
}

// Default returns three attempts five seconds apart.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Backoff:     Constant,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err comes from a policy running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

type classifierFunc func(error) retrier.Action

func (f classifierFunc) Classify(err error) retrier.Action {
	return f(err)
}

func (p Policy) backoff() []time.Duration {
	n := max(p.MaxAttempts-1, 0)
	if p.Backoff == Exponential {
		return retrier.ExponentialBackoff(n, p.Delay)
	}
	return retrier.ConstantBackoff(n, p.Delay)
}

// Do runs fn until it succeeds, fails with a non-retryable error, ctx ends or
// MaxAttempts attempts have been made. Non-retryable errors are returned as is;
// running out of attempts yields an *ExhaustedError wrapping the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := 0
	var last error
	var retryable bool

	classify := classifierFunc(func(err error) retrier.Action {
		last, retryable = err, false
		switch {
		case err == nil:
			return retrier.Succeed
		case ctx.Err() != nil:
			return retrier.Fail
		case p.Retryable != nil && !p.Retryable(err):
			return retrier.Fail
		}
		retryable = true
		if p.OnRetry != nil && attempts < p.MaxAttempts {
			p.OnRetry(attempts, err)
		}
		return retrier.Retry
	})

	r := retrier.New(p.backoff(), classify)
	if p.Jitter > 0 {
		r.SetJitter(p.Jitter)
	}

	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempts++
		return fn(ctx)
	})
	switch {
	case err == nil:
		return nil
	case retryable && attempts < p.MaxAttempts:
		// interrupted while waiting for the next attempt
		return fmt.Errorf("retry interrupted after %d attempts: %w (last error: %v)", attempts, err, last)
	case retryable:
		return &ExhaustedError{Attempts: attempts, Err: err}
	default:
		return err
	}
}
