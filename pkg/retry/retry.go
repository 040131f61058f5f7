// Package retry wraps avast/retry-go with a small config surface for
// outbound provider calls.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config bounds a retry loop.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns the defaults used when a caller passes a zero Config.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn with exponential backoff until it succeeds, the attempts run
// out, or ctx is cancelled. Only the last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts == 0 {
		cfg = DefaultConfig()
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
