package providers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig controls the linear backoff BaseDriver.WithRetry applies around
// a single upstream call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig mirrors the conservative defaults used across the
// driver set: a handful of attempts with a linearly growing, jittered
// delay capped at a few seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// BaseDriver holds fields and helpers shared by every concrete driver:
// logging and retry policy. The Prices field is not read by any driver:
// usage is recomputed without a price table.
type BaseDriver struct {
	Log    *slog.Logger
	Retry  RetryConfig
	Prices *Options
}

// NewBaseDriver constructs a BaseDriver with default retry behavior.
func NewBaseDriver(log *slog.Logger) BaseDriver {
	if log == nil {
		log = slog.Default()
	}
	return BaseDriver{Log: log, Retry: DefaultRetryConfig()}
}

// RetryableError marks an error as safe to retry; drivers wrap transient
// upstream failures (5xx, connection resets, overloaded) with it.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err was wrapped as retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// WithRetry runs fn, retrying with linear backoff and jitter while fn
// returns a retryable error and attempts remain. It stops immediately on
// ctx cancellation or a non-retryable error.
func (b BaseDriver) WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= b.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == b.Retry.MaxAttempts {
			return err
		}
		delay := b.Retry.BaseDelay * time.Duration(attempt)
		if delay > b.Retry.MaxDelay {
			delay = b.Retry.MaxDelay
		}
		delay += time.Duration(rand.Int63n(int64(b.Retry.BaseDelay)))
		b.Log.Warn("provider call failed, retrying", "op", op, "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
