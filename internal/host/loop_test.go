package host_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/huntbot/internal/host"
	"github.com/cory-johannsen/huntbot/internal/hunt"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewLoop_PanicsOnZeroResolution(t *testing.T) {
	assert.Panics(t, func() { host.NewLoop(0, nil) })
}

func TestLoop_FirstFiringIsOneIntervalAfterAdvance(t *testing.T) {
	l := host.NewLoop(time.Millisecond, zaptest.NewLogger(t))
	var fired []time.Time
	l.RegisterPeriodic(100*time.Millisecond, func(now time.Time) { fired = append(fired, now) })

	assert.Equal(t, 0, l.Advance(t0))
	assert.Equal(t, 0, l.Advance(t0.Add(99*time.Millisecond)))
	assert.Equal(t, 1, l.Advance(t0.Add(100*time.Millisecond)))
	assert.Equal(t, 1, l.Advance(t0.Add(200*time.Millisecond)))
	assert.Equal(t, []time.Time{t0.Add(100 * time.Millisecond), t0.Add(200 * time.Millisecond)}, fired)
}

func TestLoop_LateAdvanceFiresOnce(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	count := 0
	l.RegisterPeriodic(10*time.Millisecond, func(time.Time) { count++ })
	l.Advance(t0)

	l.Advance(t0.Add(time.Second))
	assert.Equal(t, 1, count, "missed intervals are not replayed")

	l.Advance(t0.Add(time.Second + 5*time.Millisecond))
	assert.Equal(t, 1, count)
	l.Advance(t0.Add(time.Second + 10*time.Millisecond))
	assert.Equal(t, 2, count)
}

func TestLoop_OrderByDueThenRegistration(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	var order []string
	l.RegisterPeriodic(50*time.Millisecond, func(time.Time) { order = append(order, "slow") })
	l.RegisterPeriodic(20*time.Millisecond, func(time.Time) { order = append(order, "fast") })
	l.RegisterPeriodic(50*time.Millisecond, func(time.Time) { order = append(order, "slow2") })
	l.Advance(t0)

	l.Advance(t0.Add(60 * time.Millisecond))
	assert.Equal(t, []string{"fast", "slow", "slow2"}, order)
}

func TestLoop_CancelFromInsideTask(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	var self hunt.TaskHandle
	count := 0
	self = l.RegisterPeriodic(10*time.Millisecond, func(time.Time) {
		count++
		l.Cancel(self)
	})
	l.Advance(t0)
	l.Advance(t0.Add(10 * time.Millisecond))
	l.Advance(t0.Add(20 * time.Millisecond))
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, l.Len())
}

func TestLoop_TaskCancelledByEarlierTaskDoesNotFire(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	var victim hunt.TaskHandle
	victimFired := false
	l.RegisterPeriodic(10*time.Millisecond, func(time.Time) { l.Cancel(victim) })
	victim = l.RegisterPeriodic(10*time.Millisecond, func(time.Time) { victimFired = true })
	l.Advance(t0)

	l.Advance(t0.Add(10 * time.Millisecond))
	assert.False(t, victimFired)
}

func TestLoop_ReregisterFromInsideTask(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	var fired []string
	var h hunt.TaskHandle
	h = l.RegisterPeriodic(100*time.Millisecond, func(time.Time) {
		fired = append(fired, "slow")
		l.Cancel(h)
		l.RegisterPeriodic(10*time.Millisecond, func(time.Time) { fired = append(fired, "fast") })
	})
	l.Advance(t0)
	l.Advance(t0.Add(100 * time.Millisecond))
	assert.Equal(t, []string{"slow"}, fired, "a task registered mid-advance does not fire in that advance")

	l.Advance(t0.Add(105 * time.Millisecond))
	assert.Equal(t, []string{"slow"}, fired)
	l.Advance(t0.Add(110 * time.Millisecond))
	assert.Equal(t, []string{"slow", "fast"}, fired, "due one interval after the registering advance")
	assert.Equal(t, 1, l.Len())
}

func TestLoop_RegisterOutsideAdvanceWaitsForNextAdvance(t *testing.T) {
	l := host.NewLoop(time.Millisecond, nil)
	l.Advance(t0)
	count := 0
	l.RegisterPeriodic(10*time.Millisecond, func(time.Time) { count++ })

	l.Advance(t0.Add(10 * time.Millisecond))
	assert.Zero(t, count, "first advance after registration only seeds the due time")
	l.Advance(t0.Add(20 * time.Millisecond))
	assert.Equal(t, 1, count)
}

func TestLoop_PanickingTaskStaysRegistered(t *testing.T) {
	l := host.NewLoop(time.Millisecond, zaptest.NewLogger(t))
	count := 0
	l.RegisterPeriodic(10*time.Millisecond, func(time.Time) {
		count++
		panic("boom")
	})
	l.Advance(t0)
	require.NotPanics(t, func() { l.Advance(t0.Add(10 * time.Millisecond)) })
	l.Advance(t0.Add(20 * time.Millisecond))
	assert.Equal(t, 2, count)
	assert.Equal(t, uint64(2), l.Fired())
}

func TestLoop_RunFiresUntilCancelled(t *testing.T) {
	l := host.NewLoop(2*time.Millisecond, zaptest.NewLogger(t))
	fired := make(chan struct{}, 1)
	l.RegisterPeriodic(5*time.Millisecond, func(time.Time) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task not fired by Run")
	}
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoop_SatisfiesTimerHost(t *testing.T) {
	var _ hunt.TimerHost = host.NewLoop(time.Millisecond, nil)
}

func TestProperty_Loop_FiringCountMatchesElapsedIntervals(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		interval := time.Duration(rapid.IntRange(1, 50).Draw(rt, "interval_ms")) * time.Millisecond
		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		l := host.NewLoop(time.Millisecond, nil)
		count := 0
		l.RegisterPeriodic(interval, func(time.Time) { count++ })

		l.Advance(t0)
		for i := 1; i <= steps; i++ {
			l.Advance(t0.Add(time.Duration(i) * time.Millisecond))
		}
		want := steps / int(interval/time.Millisecond)
		if count != want {
			rt.Fatalf("interval=%s steps=%d: fired %d, want %d", interval, steps, count, want)
		}
	})
}
