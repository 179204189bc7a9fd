package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type hintedError struct{ wait time.Duration }

func (e hintedError) Error() string { return "slow down" }
func (e hintedError) RetryAfter() (time.Duration, bool) { return e.wait, true }

func TestDo_ExhaustsAttemptsWithDoublingDelays(t *testing.T) {
	timer := &recordingTimer{}
	var retried []uint
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Timer:        timer,
		OnRetry: func(n uint, _ time.Duration, _ error) {
			retried = append(retried, n)
		},
	}

	calls := 0
	errDown := errors.New("down")
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errDown
	})

	require.ErrorIs(t, err, errDown)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.delays)
	assert.Equal(t, []uint{0, 1}, retried)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	timer := &recordingTimer{}
	errBad := errors.New("bad request")

	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Second, Timer: timer}, func() error {
		calls++
		return Permanent(errBad)
	})

	assert.ErrorIs(t, err, errBad)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	timer := &recordingTimer{}
	calls := 0
	got, err := DoWithResult(context.Background(), Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, Timer: timer}, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Len(t, timer.delays, 1)
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, cfg.Delay(0, errors.New("x")))
	assert.Equal(t, 2*time.Second, cfg.Delay(1, errors.New("x")))
	assert.Equal(t, 4*time.Second, cfg.Delay(2, errors.New("x")))
	assert.Equal(t, 10*time.Second, cfg.Delay(8, errors.New("x")))
	assert.Equal(t, 7*time.Second, cfg.Delay(0, hintedError{wait: 7 * time.Second}))
	assert.Equal(t, time.Minute, cfg.Delay(0, hintedError{wait: time.Minute}), "server hint is honoured past MaxDelay")
}

func TestDo_ReportedDelayMatchesSleep(t *testing.T) {
	timer := &recordingTimer{}
	var reported []time.Duration
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Timer:        timer,
		OnRetry: func(_ uint, d time.Duration, _ error) {
			reported = append(reported, d)
		},
	}

	_ = Do(context.Background(), cfg, func() error { return errors.New("down") })

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	assert.Equal(t, want, timer.delays)
	assert.Equal(t, want, reported)
}

func TestDo_HintedWaitIsNotCapped(t *testing.T) {
	timer := &recordingTimer{}
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 60 * time.Second, Timer: timer}

	_ = Do(context.Background(), cfg, func() error { return hintedError{wait: 90 * time.Second} })

	assert.Equal(t, []time.Duration{90 * time.Second}, timer.delays)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 3, InitialDelay: time.Hour}, func() error {
		return errors.New("down")
	})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint(3), cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)
}
