// Package retry provides retry mechanisms with exponential backoff for stobixd.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/bardlex/stobixd/pkg/errors"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single wait. Zero leaves the backoff uncapped.
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool

	// OnRetry is called after a failed attempt that will be retried,
	// with the 1-based attempt number and the wait before the next one.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the request retry policy: 3 attempts, 2s then x1.5, no jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  1.5,
	}
}

// SinkConfig returns a retry configuration for telemetry and event sinks
func SinkConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// Do executes a function with retry logic
func Do(ctx context.Context, config *Config, fn RetryableFunc) error {
	_, err := DoWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes a function with retry logic and returns a result
func DoWithResult[T any](ctx context.Context, config *Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if config == nil {
		config = DefaultConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			return zero, err
		}

		// No delay after the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := config.calculateDelay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	// Keep the category of the last failure so callers can still classify it
	wrappedErr := errors.Wrap(lastErr, errors.TypeOf(lastErr), "retry",
		fmt.Sprintf("operation failed after %d attempts", attempts)).
		WithContext("max_attempts", attempts)

	return zero, wrappedErr
}

// Delays returns the waits that precede attempts 2..MaxAttempts, without jitter.
func (c *Config) Delays() []time.Duration {
	noJitter := *c
	noJitter.Jitter = false
	var out []time.Duration
	for attempt := 0; attempt < c.MaxAttempts-1; attempt++ {
		out = append(out, noJitter.calculateDelay(attempt))
	}
	return out
}

// calculateDelay calculates the delay for the given attempt using exponential backoff
func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))

	if c.MaxDelay > 0 {
		delay = min(delay, float64(c.MaxDelay))
	}

	if c.Jitter {
		// Add random jitter up to 10% of the delay
		jitter := delay * 0.1 * rand.Float64()
		delay += jitter
	}

	return time.Duration(delay)
}
