package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// State of a circuit breaker as reported to callers.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Gauge returns the numeric encoding used by the circuit_breaker_state metric.
func (s State) Gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold consecutive failures while closed open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenSuccesses consecutive successes while half-open close the circuit.
	HalfOpenSuccesses uint32
	// OnStateChange is invoked on every transition. It runs while gobreaker
	// holds its own lock and must not call back into the Breaker.
	OnStateChange func(name string, from, to State)
}

func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		HalfOpenSuccesses:   3,
	}
}

// Snapshot is a read-only view of a breaker.
type Snapshot struct {
	Name            string     `json:"name"`
	State           State      `json:"state"`
	FailureCount    uint32     `json:"failure_count"`
	SuccessCount    uint32     `json:"success_count"`
	LastFailureTime *time.Time `json:"last_failure_time"`
}

// Breaker gates calls to one external dependency. The state machine is
// gobreaker's; Breaker adds the failure bookkeeping exposed in snapshots and
// an operator reset.
type Breaker struct {
	name     string
	settings Settings

	mu           sync.Mutex
	cb           *gobreaker.CircuitBreaker[struct{}]
	failureCount uint32
	lastFailure  time.Time
}

func New(name string, s Settings) *Breaker {
	d := DefaultSettings()
	if s.FailureThreshold == 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = d.OpenTimeout
	}
	if s.HalfOpenSuccesses == 0 {
		s.HalfOpenSuccesses = d.HalfOpenSuccesses
	}

	b := &Breaker{name: name, settings: s}
	b.cb = b.newCircuit()
	return b
}

func (b *Breaker) newCircuit() *gobreaker.CircuitBreaker[struct{}] {
	threshold := b.settings.FailureThreshold
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.settings.HalfOpenSuccesses,
		// Interval 0 keeps closed-state counts until a failure streak is broken.
		Interval: 0,
		Timeout:  b.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.settings.OnStateChange != nil {
				b.settings.OnStateChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) circuit() *gobreaker.CircuitBreaker[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cb
}

// Call runs op unless the circuit rejects it. attempted reports whether op
// was invoked; a rejection wraps errors.ErrCircuitOpen. Any error returned by
// op counts as a dependency failure. op runs without any lock held, so gating
// reflects the state at call start.
func (b *Breaker) Call(op func() error) (attempted bool, err error) {
	cb := b.circuit()

	_, err = cb.Execute(func() (struct{}, error) {
		attempted = true
		return struct{}{}, op()
	})
	if !attempted {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, fmt.Errorf("%s: %w", b.name, domainerrors.ErrCircuitOpen)
		}
		return false, err
	}

	b.mu.Lock()
	if err == nil {
		b.failureCount = 0
	} else {
		b.failureCount++
		b.lastFailure = time.Now()
	}
	b.mu.Unlock()

	return true, err
}

// State reports the current state, moving an expired open circuit to half-open.
func (b *Breaker) State() State {
	return fromGobreaker(b.circuit().State())
}

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	cb := b.cb
	snap := Snapshot{
		Name:         b.name,
		FailureCount: b.failureCount,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailureTime = &t
	}
	b.mu.Unlock()

	snap.State = fromGobreaker(cb.State())
	if snap.State == StateHalfOpen {
		snap.SuccessCount = cb.Counts().ConsecutiveSuccesses
	}
	return snap
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := fromGobreaker(b.cb.State())
	b.cb = b.newCircuit()
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if from != StateClosed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, StateClosed)
	}
}
