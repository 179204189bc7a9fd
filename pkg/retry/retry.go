package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is called before each sleep with the zero-based attempt that
	// failed and the delay about to be taken.
	OnRetry func(attempt uint, delay time.Duration, err error)
	// Timer replaces time.After for the sleeps between attempts.
	Timer Timer
}

// Timer is the sleep source between attempts.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

// DelayHinter is implemented by errors that carry a server-provided wait.
type DelayHinter interface {
	RetryAfter() (time.Duration, bool)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// Delay returns the wait after the zero-based attempt n failed with err:
// the server hint when err carries one, otherwise InitialDelay doubled n times
// and capped at MaxDelay. Server hints are not capped.
func (c Config) Delay(n uint, err error) time.Duration {
	var hinter DelayHinter
	if errors.As(err, &hinter) {
		if d, ok := hinter.RetryAfter(); ok {
			return d
		}
	}
	if n > 30 {
		n = 30
	}
	return c.capped(c.InitialDelay * time.Duration(uint64(1)<<n))
}

func (c Config) capped(d time.Duration) time.Duration {
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Do executes fn up to MaxAttempts times, sleeping between failed attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		// retry-go numbers the sleep after attempt n as n+1.
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			if n > 0 {
				n--
			}
			return cfg.Delay(n, err)
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			// retry-go also reports the final attempt; there is no sleep after it.
			if cfg.OnRetry != nil && n+1 < cfg.MaxAttempts {
				cfg.OnRetry(n, cfg.Delay(n, err), err)
			}
		}),
	}
	if cfg.Timer != nil {
		opts = append(opts, retry.WithTimer(cfg.Timer))
	}
	return retry.Do(fn, opts...)
}

// DoWithResult executes a function with retry and returns its result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
