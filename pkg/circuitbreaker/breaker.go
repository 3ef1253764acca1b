// Package circuitbreaker stops calling a failing upstream for a cooldown period, then
// lets a limited number of trial calls through before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrTrialLimit  = errors.New("circuit breaker trial limit reached")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

type Config struct {
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before admitting trial calls.
	Cooldown time.Duration
	// Window, when set, clears the failure streak of a closed breaker periodically.
	Window time.Duration
	// TrialLimit caps calls admitted while half-open; TrialSuccesses of them must
	// succeed to close.
	TrialLimit     int
	TrialSuccesses int
	// Countable reports whether err counts against the upstream. Errors it rejects are
	// returned to the caller but leave the breaker untouched.
	Countable    func(error) bool
	OnTransition func(name string, from, to State)
	Logger       *zap.Logger
}

// Stats describe the current epoch; they are cleared on every transition.
type Stats struct {
	Calls     int
	Successes int
	Failures  int
	Streak    int
}

type CircuitBreaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	epoch    uint64
	stats    Stats
	trials   int
	okTrials int
	until    time.Time
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.TrialSuccesses <= 0 {
		cfg.TrialSuccesses = 1
	}
	if cfg.TrialLimit < cfg.TrialSuccesses {
		cfg.TrialLimit = cfg.TrialSuccesses
	}
	if cfg.Countable == nil {
		cfg.Countable = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
	cb.startEpoch(cb.now())
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker is open or out of trials.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	epoch, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(epoch, errors.New("panic"))
			panic(r)
		}
	}()

	err = fn(ctx)
	cb.record(epoch, err)
	return err
}

// ExecuteWithResult runs fn through cb and hands back its value.
func ExecuteWithResult[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(cb.now())
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())
	switch cb.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.trials >= cb.cfg.TrialLimit {
			return 0, ErrTrialLimit
		}
		cb.trials++
	}
	cb.stats.Calls++
	return cb.epoch, nil
}

func (cb *CircuitBreaker) record(epoch uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.advance(now)
	if epoch != cb.epoch {
		return
	}

	switch {
	case err != nil && !cb.cfg.Countable(err):
		if cb.state == StateHalfOpen {
			cb.trials--
		}
	case err != nil:
		cb.stats.Failures++
		cb.stats.Streak++
		if cb.state == StateHalfOpen || cb.stats.Streak >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	default:
		cb.stats.Successes++
		cb.stats.Streak = 0
		if cb.state == StateHalfOpen {
			cb.okTrials++
			if cb.okTrials >= cb.cfg.TrialSuccesses {
				cb.transition(StateClosed, now)
			}
		}
	}
}

// advance applies time-driven changes: the end of a cooldown or of a closed window.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.until.IsZero() || now.Before(cb.until) {
		return
	}
	switch cb.state {
	case StateOpen:
		cb.transition(StateHalfOpen, now)
	case StateClosed:
		cb.startEpoch(now)
	}
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	streak := cb.stats.Streak
	cb.state = to
	cb.startEpoch(now)

	if cb.cfg.OnTransition != nil {
		cb.cfg.OnTransition(cb.name, from, to)
	}
	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failure_streak", streak),
	)
}

func (cb *CircuitBreaker) startEpoch(now time.Time) {
	cb.epoch++
	cb.stats = Stats{}
	cb.trials, cb.okTrials = 0, 0
	cb.until = time.Time{}

	switch {
	case cb.state == StateOpen:
		cb.until = now.Add(cb.cfg.Cooldown)
	case cb.state == StateClosed && cb.cfg.Window > 0:
		cb.until = now.Add(cb.cfg.Window)
	}
}
