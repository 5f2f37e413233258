package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBackoffBase is the first retry delay; each attempt doubles it.
const DefaultBackoffBase = time.Second

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. RetryWithBackoff returns it
// immediately, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// RetryAfter asks RetryWithBackoff to wait delay instead of the computed
// backoff before the next attempt, as servers request with Retry-After.
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{err: err, delay: delay}
}

// RetryWithBackoff calls fn up to maxRetries+1 times with exponential backoff
// starting at DefaultBackoffBase.
func RetryWithBackoff(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	return RetryWithBackoffBase(ctx, maxRetries, DefaultBackoffBase, fn)
}

// RetryWithBackoffBase is RetryWithBackoff with a custom first delay.
// fn receives the current attempt number (0-indexed). If the context is
// cancelled, the context error is returned immediately.
func RetryWithBackoffBase(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == maxRetries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff := base << attempt
		var ra *retryAfterError
		if errors.As(lastErr, &ra) && ra.delay > 0 {
			backoff = ra.delay
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
