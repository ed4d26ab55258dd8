package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	MaxTotalTimeout time.Duration
}

// DefaultConfig suits connection setup: quick first retries, capped at ten
// seconds between attempts and one minute overall.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 60 * time.Second,
	}
}

// Do runs fn with exponential backoff until it succeeds, the attempts run
// out, or the context ends.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return DoWithLog(ctx, cfg, "retry", fn, nil)
}

// DoWithLog is Do with a per-attempt callback. logFn receives the attempt
// number, the error, and the delay before the next try; it may be nil.
func DoWithLog(ctx context.Context, cfg Config, name string, fn func() error, logFn func(attempt int, err error, nextDelay time.Duration)) error {
	if cfg.MaxTotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxTotalTimeout)
		defer cancel()
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return abortErr(name, attempt-1, err, lastErr)
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: max retry attempts (%d) exceeded: %w", name, cfg.MaxAttempts, lastErr)
		}

		if logFn != nil {
			logFn(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return abortErr(name, attempt, ctx.Err(), lastErr)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

func abortErr(name string, attempts int, ctxErr, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%s: retry aborted after %d attempts: %w (last error: %v)", name, attempts, ctxErr, lastErr)
	}
	return fmt.Errorf("%s: retry aborted: %w", name, ctxErr)
}
