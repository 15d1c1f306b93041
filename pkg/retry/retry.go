// Package retry provides a generic N-attempt, fixed-delay retry wrapper
// for provider and notifier calls. It reraises the last error once
// attempts are exhausted. This is distinct from the market-data loader's
// residual retry (internal/marketdata), which narrows the retried set
// between attempts instead of repeating the whole call.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config controls attempt count and inter-attempt delay.
type Config struct {
	Attempts int
	Delay    time.Duration
}

// Do calls fn up to cfg.Attempts times, sleeping cfg.Delay between
// failures, and returns the last error if every attempt fails. ctx
// cancellation is honored between attempts.
func Do(ctx context.Context, cfg Config, log zerolog.Logger, name string, fn func(ctx context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < attempts {
			log.Warn().
				Err(lastErr).
				Str("call", name).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Msg("retrying after failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
