// Package scheduler provides the deadline service behind check-in windows,
// auto-confirm countdowns and date-driven status changes. Timers never fire
// inline from an OS timer: a single loop collects due timers and hands each
// one to the callback registered at schedule time, which is expected to post
// the fire into the owning tournament's runner. That indirection is what
// lets a freeze suspend delivery atomically.
package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time.Now so tests can drive deadlines deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

type TimerKind string

const (
	KindCheckIn     TimerKind = "check_in"
	KindAutoConfirm TimerKind = "auto_confirm"
	KindPayment     TimerKind = "payment"
)

// Fire describes a timer expiry delivered to its callback. Expiry is the
// expected behavior of a timer, not an error.
type Fire struct {
	TimerID  uuid.UUID
	OwnerID  int
	Kind     TimerKind
	MatchID  *uuid.UUID
	Deadline time.Time
	FiredAt  time.Time
}

type timer struct {
	id       uuid.UUID
	ownerID  int
	kind     TimerKind
	matchID  *uuid.UUID
	deadline time.Time

	// While suspended the deadline is meaningless; remaining holds the
	// duration the timer still had to run at suspension time.
	suspended bool
	remaining time.Duration

	fire func(Fire)
}

type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	timers map[uuid.UUID]*timer

	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
	logger   *slog.Logger
}

func New(clock Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Scheduler{
		clock:    clock,
		timers:   make(map[uuid.UUID]*timer),
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Run drives the scheduler until Stop is called. Matches the ticker loop the
// status sweeper uses in cmd/main.go.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()
	for {
		select {
		case <-ticker.C:
			s.FireDue(s.clock.Now())
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.quit)
	<-s.done
}

// Schedule registers a timer owned by a tournament. The callback runs on the
// scheduler's loop when the deadline passes; it must hand off quickly.
func (s *Scheduler) Schedule(ownerID int, kind TimerKind, matchID *uuid.UUID, delay time.Duration, fire func(Fire)) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &timer{
		id:       uuid.New(),
		ownerID:  ownerID,
		kind:     kind,
		matchID:  matchID,
		deadline: s.clock.Now().Add(delay),
		fire:     fire,
	}
	s.timers[t.id] = t
	return t.id
}

// Cancel removes a timer. Cancelling an already-fired or unknown timer is a
// no-op returning false.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

// CancelOwner drops every timer belonging to a tournament, fired or not.
// Used when a tournament is cancelled.
func (s *Scheduler) CancelOwner(ownerID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.timers {
		if t.ownerID == ownerID {
			delete(s.timers, id)
			n++
		}
	}
	return n
}

// SuspendOwner captures the remaining duration of every running timer owned
// by the tournament. Already-suspended timers are left untouched, so nested
// or repeated freezes cannot shrink a timer's remaining time.
func (s *Scheduler) SuspendOwner(ownerID int, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.ownerID != ownerID || t.suspended {
			continue
		}
		remaining := t.deadline.Sub(at)
		if remaining < 0 {
			remaining = 0
		}
		t.suspended = true
		t.remaining = remaining
		n++
	}
	return n
}

// ResumeOwner reinstates suspended timers with their captured remaining
// duration measured from the resume instant. A timer that had d left at
// freeze time therefore fires no earlier than d after resume regardless of
// how long, or how often, the tournament stayed frozen.
func (s *Scheduler) ResumeOwner(ownerID int, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.ownerID != ownerID || !t.suspended {
			continue
		}
		t.deadline = at.Add(t.remaining)
		t.suspended = false
		t.remaining = 0
		n++
	}
	return n
}

// FireDue fires every non-suspended timer whose deadline has passed and
// removes it. Callbacks run outside the lock, ordered by deadline so
// cascading expiries stay deterministic.
func (s *Scheduler) FireDue(now time.Time) int {
	s.mu.Lock()
	due := make([]*timer, 0)
	for id, t := range s.timers {
		if t.suspended || t.deadline.After(now) {
			continue
		}
		due = append(due, t)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		if s.logger != nil {
			s.logger.Debug("timer fired",
				slog.String("kind", string(t.kind)),
				slog.Int("tournament_id", t.ownerID))
		}
		t.fire(Fire{
			TimerID:  t.id,
			OwnerID:  t.ownerID,
			Kind:     t.kind,
			MatchID:  t.matchID,
			Deadline: t.deadline,
			FiredAt:  now,
		})
	}
	return len(due)
}

// Pending returns the number of registered timers, suspended included.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
