package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler() (*Scheduler, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(clock, time.Second, nil), clock
}

func TestFireDueFiresOnlyExpiredTimers(t *testing.T) {
	s, clock := newTestScheduler()

	var fired []TimerKind
	s.Schedule(1, KindCheckIn, nil, 10*time.Minute, func(f Fire) { fired = append(fired, f.Kind) })
	s.Schedule(1, KindAutoConfirm, nil, 30*time.Minute, func(f Fire) { fired = append(fired, f.Kind) })

	clock.advance(15 * time.Minute)
	assert.Equal(t, 1, s.FireDue(clock.Now()))
	assert.Equal(t, []TimerKind{KindCheckIn}, fired)
	assert.Equal(t, 1, s.Pending())

	clock.advance(20 * time.Minute)
	assert.Equal(t, 1, s.FireDue(clock.Now()))
	assert.Equal(t, []TimerKind{KindCheckIn, KindAutoConfirm}, fired)
	assert.Equal(t, 0, s.Pending())
}

func TestCancelPreventsFire(t *testing.T) {
	s, clock := newTestScheduler()

	fired := false
	id := s.Schedule(1, KindAutoConfirm, nil, time.Minute, func(Fire) { fired = true })

	require.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id), "second cancel must be a no-op")

	clock.advance(2 * time.Minute)
	assert.Equal(t, 0, s.FireDue(clock.Now()))
	assert.False(t, fired)
}

func TestSuspendResumeShiftsDeadline(t *testing.T) {
	s, clock := newTestScheduler()

	fired := false
	s.Schedule(7, KindAutoConfirm, nil, 10*time.Minute, func(Fire) { fired = true })

	// Freeze with 6 minutes remaining.
	clock.advance(4 * time.Minute)
	assert.Equal(t, 1, s.SuspendOwner(7, clock.Now()))

	// An hour passes frozen; nothing may fire.
	clock.advance(time.Hour)
	assert.Equal(t, 0, s.FireDue(clock.Now()))

	assert.Equal(t, 1, s.ResumeOwner(7, clock.Now()))

	// 5 of the 6 remaining minutes pass: still nothing.
	clock.advance(5 * time.Minute)
	assert.Equal(t, 0, s.FireDue(clock.Now()))
	assert.False(t, fired)

	clock.advance(90 * time.Second)
	assert.Equal(t, 1, s.FireDue(clock.Now()))
	assert.True(t, fired)
}

func TestRepeatedFreezeCyclesNeverFireEarly(t *testing.T) {
	s, clock := newTestScheduler()

	fired := false
	s.Schedule(3, KindCheckIn, nil, 10*time.Minute, func(Fire) { fired = true })

	// Three freeze/resume cycles, each consuming 2 minutes of run time.
	for i := 0; i < 3; i++ {
		clock.advance(2 * time.Minute)
		require.Equal(t, 1, s.SuspendOwner(3, clock.Now()))

		// Double-suspend must not re-capture a shorter remaining duration.
		require.Equal(t, 0, s.SuspendOwner(3, clock.Now()))

		clock.advance(30 * time.Minute)
		require.Equal(t, 0, s.FireDue(clock.Now()), "cycle %d: fired while frozen", i)
		require.Equal(t, 1, s.ResumeOwner(3, clock.Now()))
	}

	// 6 of 10 minutes consumed across cycles; 4 remain.
	clock.advance(3 * time.Minute)
	assert.Equal(t, 0, s.FireDue(clock.Now()))
	assert.False(t, fired)

	clock.advance(90 * time.Second)
	assert.Equal(t, 1, s.FireDue(clock.Now()))
	assert.True(t, fired)
}

func TestCancelOwnerDropsAllTimers(t *testing.T) {
	s, clock := newTestScheduler()

	s.Schedule(5, KindCheckIn, nil, time.Minute, func(Fire) {})
	s.Schedule(5, KindAutoConfirm, nil, time.Minute, func(Fire) {})
	s.Schedule(6, KindCheckIn, nil, time.Minute, func(Fire) {})

	assert.Equal(t, 2, s.CancelOwner(5))
	assert.Equal(t, 1, s.Pending())

	clock.advance(2 * time.Minute)
	assert.Equal(t, 1, s.FireDue(clock.Now()))
}

func TestFireOrderFollowsDeadlines(t *testing.T) {
	s, clock := newTestScheduler()

	var order []TimerKind
	s.Schedule(1, KindAutoConfirm, nil, 3*time.Minute, func(f Fire) { order = append(order, f.Kind) })
	s.Schedule(1, KindCheckIn, nil, time.Minute, func(f Fire) { order = append(order, f.Kind) })
	s.Schedule(1, KindPayment, nil, 2*time.Minute, func(f Fire) { order = append(order, f.Kind) })

	clock.advance(10 * time.Minute)
	assert.Equal(t, 3, s.FireDue(clock.Now()))
	assert.Equal(t, []TimerKind{KindCheckIn, KindPayment, KindAutoConfirm}, order)
}
