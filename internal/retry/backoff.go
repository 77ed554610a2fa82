// Package retry runs operations under exponential backoff. It is used for
// start-up dials and for idempotent store writes, never for message creation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabchat/internal/models"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

// DefaultPolicy suits start-up dials of the store and the presence cache
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// PolicyFrom builds a policy from the retry section of the configuration.
// Zero fields keep their defaults.
func PolicyFrom(cfg models.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.InitialBackoffMs > 0 {
		p.InitialDelay = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		p.MaxDelay = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	return p
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type options struct {
	retryable func(error) bool
	onRetry   func(attempt int, err error, next time.Duration)
}

// Option customizes a single Do call
type Option func(*options)

// If limits retries to errors for which pred is true. Other errors are
// returned unchanged after the first attempt.
func If(pred func(error) bool) Option {
	return func(o *options) { o.retryable = pred }
}

// OnRetry is called before each wait
func OnRetry(fn func(attempt int, err error, next time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do runs op until it succeeds, the attempts run out, a non-retryable error
// occurs or ctx is done.
func Do(ctx context.Context, p Policy, operation string, op func(ctx context.Context) error, opts ...Option) error {
	o := options{retryable: func(error) bool { return true }}
	for _, opt := range opts {
		opt(&o)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() == nil && !o.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			if o.onRetry != nil {
				o.onRetry(attempts, err, next)
			}
		}),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !o.retryable(err) {
		return err
	}
	return &ExhaustedError{Operation: operation, Attempts: attempts, Err: err}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	if p.Jitter {
		b.RandomizationFactor = 0.25
	}
	b.Reset()
	return b
}

// Delay returns the un-jittered wait before retry number attempt, counting
// from 1
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
