package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"syscall"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the base delay; attempt n waits InitialDelay*2^n.
	InitialDelay time.Duration

	// MaxDelay caps the exponential part of the delay.
	MaxDelay time.Duration

	// Jitter is the fraction of the capped delay added at random, in [0, 1].
	Jitter float64

	// ShouldRetry decides whether err is worth another attempt.
	// Nil means DefaultShouldRetry.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Jitter:       0.2,
	}
}

// DefaultShouldRetry retries classified errors whose code is retryable
// (timeout, rate limit, transient) and unclassified network failures.
// Everything else, quota exhaustion included, is returned at once.
func DefaultShouldRetry(err error) bool {
	if err == nil || IsQuota(err) {
		return false
	}
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return isTransportFailure(err)
}

// isTransportFailure reports network-level failures that never reached a
// classifier. Caller cancellation and deadlines are not retried.
func isTransportFailure(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNREFUSED)
}

// Backoff returns the wait before retry number attempt (0-based):
// min(MaxDelay, InitialDelay*2^attempt) plus up to Jitter of that value.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(2, float64(attempt))
	if c.MaxDelay > 0 && base > float64(c.MaxDelay) {
		base = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		base += rand.Float64() * c.Jitter * base
	}
	return time.Duration(base)
}

// Retry executes fn with exponential backoff. Errors rejected by ShouldRetry
// are returned immediately and unwrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
		lastErr = err

		if attempt >= cfg.MaxRetries {
			break
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
