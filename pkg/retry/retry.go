// Package retry re-runs calls to flaky upstreams with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// RetryIf decides whether an error is worth another attempt. Nil retries
	// everything except context errors.
	RetryIf func(error) bool
	Logger  *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Backoff is the wait after the given failed attempt (1-based), before jitter.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt && delay < float64(c.MaxDelay); i++ {
		delay *= c.Multiplier
	}
	return min(time.Duration(delay), c.MaxDelay)
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err so Do gives up at once. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls op until it succeeds, returns a non-retryable error, or runs out of attempts.
// If ctx ends first the context error is joined with the last failure.
func Do(ctx context.Context, cfg Config, op func() error) error {
	cfg = cfg.withDefaults()

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, last)
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Info("Operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		last = err
		if !cfg.shouldRetry(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		wait := jitter(cfg.Backoff(attempt), cfg.JitterFraction)
		cfg.Logger.Warn("Operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), last)
		case <-timer.C:
		}
	}
}

func DoWithResult[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = op()
		return err
	})
	return result, err
}

func (c Config) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return c.RetryIf == nil || c.RetryIf(err)
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	spread := fraction * float64(d)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
