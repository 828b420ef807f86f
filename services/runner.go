package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrRunnerClosed is returned for work posted after shutdown.
var ErrRunnerClosed = errors.New("tournament runner is shut down")

type job struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// Runner serializes all mutations of a tournament. Each tournament gets one
// lane, a goroutine draining a job channel, so engine state for a tournament
// is only ever touched by one goroutine at a time while separate tournaments
// proceed in parallel. HTTP handlers and timer callbacks both post through
// Do and block for the result.
type Runner struct {
	mu     sync.Mutex
	lanes  map[int]chan job
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger

	// Lane channel capacity; scheduler callbacks must not block the fire
	// loop for long.
	buffer int
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		lanes:  make(map[int]chan job),
		logger: logger,
		buffer: 64,
	}
}

// Do runs fn on the tournament's lane and returns its error. The caller's
// context only bounds the wait: once fn starts it runs to completion, so a
// cancelled request can never leave a half-applied mutation behind.
func (r *Runner) Do(ctx context.Context, tournamentID int, fn func() error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	lane, ok := r.lanes[tournamentID]
	if !ok {
		lane = make(chan job, r.buffer)
		r.lanes[tournamentID] = lane
		r.wg.Add(1)
		go r.drain(tournamentID, lane)
	}
	r.mu.Unlock()

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case lane <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) drain(tournamentID int, lane chan job) {
	defer r.wg.Done()
	for j := range lane {
		if err := j.ctx.Err(); err != nil {
			// Caller gave up while queued; skip the work entirely.
			j.done <- err
			continue
		}
		err := r.run(tournamentID, j.fn)
		j.done <- err
	}
}

func (r *Runner) run(tournamentID int, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if r.logger != nil {
				r.logger.Error("panic in tournament lane",
					slog.Int("tournament_id", tournamentID),
					slog.Any("panic", p))
			}
			err = ErrGraphInvariantViolation
		}
	}()
	return fn()
}

// Release drops a tournament's lane once it reaches a terminal status.
func (r *Runner) Release(tournamentID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lane, ok := r.lanes[tournamentID]; ok {
		close(lane)
		delete(r.lanes, tournamentID)
	}
}

// Shutdown closes every lane and waits for queued work to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	for id, lane := range r.lanes {
		close(lane)
		delete(r.lanes, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
