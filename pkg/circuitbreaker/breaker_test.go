package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *fakeClock, *[]State) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var transitions []State
	cb := New("llm", Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnTransition: func(_ string, _ State, to State) {
			transitions = append(transitions, to)
		},
	})
	cb.now = clock.Now
	return cb, clock, &transitions
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _, transitions := newTestBreaker(t)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, *transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cb, clock, transitions := newTestBreaker(t)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, *transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock, _ := newTestBreaker(t)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_CancelledContextDoesNotCount(t *testing.T) {
	cb, _, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State())
	stats := cb.Stats()
	assert.Equal(t, 5, stats.Calls)
	assert.Zero(t, stats.Failures)
	assert.Zero(t, stats.Streak)
}

func TestBreaker_TrialLimit(t *testing.T) {
	cb, clock, _ := newTestBreaker(t)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrTrialLimit)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_WindowClearsStreak(t *testing.T) {
	cb := New("llm", Config{FailureThreshold: 2, Window: time.Minute})
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb.now = clock.Now
	cb.startEpoch(clock.Now())
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().Streak)
}

func TestExecuteWithResult(t *testing.T) {
	cb, _, _ := newTestBreaker(t)
	v, err := ExecuteWithResult(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
