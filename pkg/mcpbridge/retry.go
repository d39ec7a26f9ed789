package mcpbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts (including initial)
	InitialDelay time.Duration // Initial delay before retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Delay multiplier for exponential backoff
}

// DefaultRetryConfig returns the retry configuration for relay calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryPolicy determines whether a failed relay call should be retried.
type RetryPolicy func(error) bool

// DefaultRetryPolicy retries only failures to connect to the relay. Once a
// connection is up the command may already have been forwarded, and a
// command must never run twice on the host. Host-side failures come back
// as responses, not errors, and are never retried.
func DefaultRetryPolicy() RetryPolicy {
	return func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return false
		}
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial"
	}
}

// retry calls fn until it succeeds, the policy rejects the error, or the
// attempts run out.
func retry(ctx context.Context, cfg RetryConfig, policy RetryPolicy, log *slog.Logger, name string, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			log.Info("retrying", "tool", name, "attempt", attempt, "of", attempts, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "tool", name, "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		log.Warn("relay call failed", "tool", name, "attempt", attempt, "error", err)
		if !policy(err) {
			break
		}
	}
	return lastErr
}
