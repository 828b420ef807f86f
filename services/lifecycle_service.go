package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/Dosada05/competition-engine/scheduler"
)

// EventPublisher receives engine events for fan-out. The websocket hub
// satisfies it.
type EventPublisher interface {
	Publish(event models.Event)
}

type CreateTournamentInput struct {
	Name                string                  `json:"name"`
	OrganizerID         int                     `json:"organizer_id"`
	Format              models.TournamentFormat `json:"format"`
	Seeding             models.SeedingMethod    `json:"seeding"`
	MinParticipants     int                     `json:"min_participants"`
	MaxParticipants     int                     `json:"max_participants"`
	SwissRounds         int                     `json:"swiss_rounds,omitempty"`
	GroupCount          int                     `json:"group_count,omitempty"`
	AdvancementCount    int                     `json:"advancement_count,omitempty"`
	TiebreakerHierarchy []string                `json:"tiebreaker_hierarchy,omitempty"`
	RegDate             time.Time               `json:"reg_date"`
	StartDate           time.Time               `json:"start_date"`
	EndDate             time.Time               `json:"end_date"`
}

type LifecycleService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	Get(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)

	// Transition moves the tournament along a whitelisted lifecycle edge,
	// running the edge's preconditions and side effects.
	Transition(ctx context.Context, id int, next models.TournamentStatus, actorID int) (*models.Tournament, error)

	// Freeze engages the killswitch: live only, suspends every timer the
	// tournament owns. Resume lifts it, shifting all deadlines by the time
	// spent frozen.
	Freeze(ctx context.Context, id, actorID int, reason string) (*models.Tournament, error)
	Resume(ctx context.Context, id, actorID int) (*models.Tournament, error)

	Cancel(ctx context.Context, id, actorID int, reason string) (*models.Tournament, error)

	RegisterEntrant(ctx context.Context, id int, entrant models.Entrant) error
	WithdrawEntrant(ctx context.Context, id int, ref string) error

	// SweepStatuses advances date-driven transitions: opening registration
	// at reg window start and closing it at tournament start. Invoked by a
	// recurring timer.
	SweepStatuses(ctx context.Context, now time.Time) int
}

type tournamentLifecycle struct {
	repo     repositories.TournamentRepository
	brackets BracketService
	runner   *Runner
	sched    *scheduler.Scheduler
	clock    scheduler.Clock
	events   EventPublisher
	logger   *slog.Logger
}

func NewLifecycleService(
	repo repositories.TournamentRepository,
	bracketSvc BracketService,
	runner *Runner,
	sched *scheduler.Scheduler,
	clock scheduler.Clock,
	events EventPublisher,
	logger *slog.Logger,
) LifecycleService {
	if clock == nil {
		clock = scheduler.RealClock()
	}
	return &tournamentLifecycle{
		repo:     repo,
		brackets: bracketSvc,
		runner:   runner,
		sched:    sched,
		clock:    clock,
		events:   events,
		logger:   logger,
	}
}

func (s *tournamentLifecycle) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	t := &models.Tournament{
		Name:                input.Name,
		OrganizerID:         input.OrganizerID,
		Status:              models.StatusDraft,
		Format:              input.Format,
		Seeding:             input.Seeding,
		MinParticipants:     input.MinParticipants,
		MaxParticipants:     input.MaxParticipants,
		SwissRounds:         input.SwissRounds,
		GroupCount:          input.GroupCount,
		AdvancementCount:    input.AdvancementCount,
		TiebreakerHierarchy: input.TiebreakerHierarchy,
		RegDate:             input.RegDate,
		StartDate:           input.StartDate,
		EndDate:             input.EndDate,
	}
	if t.Seeding == "" {
		t.Seeding = models.SeedingRegistration
	}
	// Drafts may be incomplete; full validation runs on submission for
	// approval. Only the format must be known up front.
	if _, err := brackets.EngineFor(t.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return t, nil
}

func (s *tournamentLifecycle) Get(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return t, nil
}

func (s *tournamentLifecycle) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.repo.List(ctx, filter)
}

func (s *tournamentLifecycle) Transition(ctx context.Context, id int, next models.TournamentStatus, actorID int) (*models.Tournament, error) {
	switch next {
	case models.StatusFrozen:
		return s.Freeze(ctx, id, actorID, "")
	case models.StatusCancelled:
		return s.Cancel(ctx, id, actorID, "")
	}

	var result *models.Tournament
	err := s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status == models.StatusFrozen && next == models.StatusLive {
			return fmt.Errorf("%w: frozen tournaments resume through the killswitch", ErrInvalidTransition)
		}
		if !isValidStatusTransition(t.Status, next) {
			return invalidTransition(t.Status, next)
		}
		if err := s.checkPreconditions(ctx, t, next); err != nil {
			return err
		}

		previous := t.Status
		if err := s.repo.UpdateStatus(ctx, nil, id, previous, next); err != nil {
			return mapTournamentRepoError(err)
		}
		t.Status = next

		if err := s.applySideEffects(ctx, t, previous); err != nil {
			return err
		}
		s.publishTransition(t, previous)
		result = t
		return nil
	})
	return result, err
}

// checkPreconditions guards edges whose legality depends on more than the
// transition map.
func (s *tournamentLifecycle) checkPreconditions(ctx context.Context, t *models.Tournament, next models.TournamentStatus) error {
	switch next {
	case models.StatusPendingApproval:
		return validateTournamentConfig(t)
	case models.StatusLive:
		count, err := s.repo.CountEntrants(ctx, t.ID)
		if err != nil {
			return err
		}
		minimum := t.MinParticipants
		if minimum < 2 {
			minimum = 2
		}
		if count < minimum {
			return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughEntrants, count, minimum)
		}
	case models.StatusCompleted:
		complete, err := s.brackets.IsComplete(ctx, t.ID)
		if err != nil {
			return err
		}
		if !complete {
			return fmt.Errorf("%w: live -> completed requires every match terminal", ErrInvalidTransition)
		}
	}
	return nil
}

func (s *tournamentLifecycle) applySideEffects(ctx context.Context, t *models.Tournament, previous models.TournamentStatus) error {
	switch t.Status {
	case models.StatusLive:
		if previous != models.StatusRegistrationClosed {
			return nil
		}
		// Going live builds the competition graph. Failure rolls the
		// status back so the organizer can retry.
		if err := s.brackets.GenerateForTournament(ctx, t); err != nil {
			if rbErr := s.repo.UpdateStatus(ctx, nil, t.ID, t.Status, previous); rbErr != nil && s.logger != nil {
				s.logger.Error("failed to roll back status after generation failure",
					slog.Int("tournament_id", t.ID), slog.Any("error", rbErr))
			}
			t.Status = previous
			return err
		}
	case models.StatusCompleted, models.StatusArchived:
		s.sched.CancelOwner(t.ID)
		if t.Status == models.StatusCompleted {
			s.events.Publish(models.NewEvent(models.EventTournamentCompleted, t.ID))
		}
	}
	return nil
}

func (s *tournamentLifecycle) publishTransition(t *models.Tournament, previous models.TournamentStatus) {
	s.events.Publish(models.NewEvent(models.EventTournamentTransitioned, t.ID).
		With("from", string(previous)).
		With("to", string(t.Status)))
	if s.logger != nil {
		s.logger.Info("tournament transitioned",
			slog.Int("tournament_id", t.ID),
			slog.String("from", string(previous)),
			slog.String("to", string(t.Status)))
	}
}

func (s *tournamentLifecycle) Freeze(ctx context.Context, id, actorID int, reason string) (*models.Tournament, error) {
	var result *models.Tournament
	err := s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.StatusLive {
			return invalidTransition(t.Status, models.StatusFrozen)
		}

		now := s.clock.Now()
		s.sched.SuspendOwner(id, now)
		if err := s.repo.UpdateFreeze(ctx, nil, id, models.StatusFrozen, &now, t.FreezeDurationAccum); err != nil {
			s.sched.ResumeOwner(id, now)
			return mapTournamentRepoError(err)
		}
		t.Status = models.StatusFrozen
		t.FrozenAt = &now

		s.events.Publish(models.NewEvent(models.EventTournamentFrozen, id).With("reason", reason))
		if s.logger != nil {
			s.logger.Warn("tournament frozen", slog.Int("tournament_id", id), slog.String("reason", reason))
		}
		result = t
		return nil
	})
	return result, err
}

func (s *tournamentLifecycle) Resume(ctx context.Context, id, actorID int) (*models.Tournament, error) {
	var result *models.Tournament
	err := s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.StatusFrozen {
			return ErrTournamentNotFrozen
		}

		now := s.clock.Now()
		accum := t.FreezeDurationAccum
		if t.FrozenAt != nil {
			accum += now.Sub(*t.FrozenAt)
		}
		if err := s.repo.UpdateFreeze(ctx, nil, id, models.StatusLive, nil, accum); err != nil {
			return mapTournamentRepoError(err)
		}
		s.sched.ResumeOwner(id, now)
		t.Status = models.StatusLive
		t.FrozenAt = nil
		t.FreezeDurationAccum = accum

		s.events.Publish(models.NewEvent(models.EventTournamentResumed, id))
		if s.logger != nil {
			s.logger.Info("tournament resumed",
				slog.Int("tournament_id", id),
				slog.Duration("frozen_for", accum))
		}

		// A force-resolve during the freeze may have decided the bracket.
		if err := s.brackets.TryComplete(ctx, id); err != nil && s.logger != nil {
			s.logger.Error("completion check after resume failed",
				slog.Int("tournament_id", id), slog.Any("error", err))
		}
		result = t
		return nil
	})
	return result, err
}

func (s *tournamentLifecycle) Cancel(ctx context.Context, id, actorID int, reason string) (*models.Tournament, error) {
	var result *models.Tournament
	err := s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if !isValidStatusTransition(t.Status, models.StatusCancelled) {
			return invalidTransition(t.Status, models.StatusCancelled)
		}

		previous := t.Status
		if err := s.repo.UpdateStatus(ctx, nil, id, previous, models.StatusCancelled); err != nil {
			return mapTournamentRepoError(err)
		}
		t.Status = models.StatusCancelled

		// Cancellation cascades: every pending timer dies and in-flight
		// matches are voided by the bracket service.
		s.sched.CancelOwner(id)
		if previous == models.StatusLive || previous == models.StatusFrozen {
			if err := s.brackets.CancelOpenMatches(ctx, id); err != nil && s.logger != nil {
				s.logger.Error("failed to cancel open matches",
					slog.Int("tournament_id", id), slog.Any("error", err))
			}
		}

		s.events.Publish(models.NewEvent(models.EventTournamentCancelled, id).With("reason", reason))
		result = t
		return nil
	})
	return result, err
}

func (s *tournamentLifecycle) RegisterEntrant(ctx context.Context, id int, entrant models.Entrant) error {
	return s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.StatusRegistrationOpen {
			return ErrRegistrationNotOpen
		}
		count, err := s.repo.CountEntrants(ctx, id)
		if err != nil {
			return err
		}
		if t.MaxParticipants > 0 && count >= t.MaxParticipants {
			return ErrTournamentFull
		}
		if err := s.repo.AddEntrant(ctx, nil, id, entrant); err != nil {
			if errors.Is(err, repositories.ErrEntrantConflict) {
				return fmt.Errorf("%w: %s", ErrValidationFailed, err)
			}
			return err
		}
		s.events.Publish(models.NewEvent(models.EventRegistrationConfirmed, id).With("ref", entrant.Ref))

		// Hitting capacity closes registration immediately.
		if t.MaxParticipants > 0 && count+1 >= t.MaxParticipants {
			if err := s.repo.UpdateStatus(ctx, nil, id, t.Status, models.StatusRegistrationClosed); err == nil {
				closed := *t
				closed.Status = models.StatusRegistrationClosed
				s.publishTransition(&closed, t.Status)
			}
		}
		return nil
	})
}

func (s *tournamentLifecycle) WithdrawEntrant(ctx context.Context, id int, ref string) error {
	return s.runner.Do(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		switch t.Status {
		case models.StatusRegistrationOpen, models.StatusRegistrationClosed:
		default:
			// Once live, leaving is a forfeit handled per match, not a
			// roster change.
			return fmt.Errorf("%w: cannot withdraw while %s", ErrInvalidTransition, t.Status)
		}
		if err := s.repo.RemoveEntrant(ctx, nil, id, ref); err != nil {
			if errors.Is(err, repositories.ErrEntrantNotFound) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
}

func (s *tournamentLifecycle) SweepStatuses(ctx context.Context, now time.Time) int {
	due, err := s.repo.ListDueForSweep(ctx, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("status sweep query failed", slog.Any("error", err))
		}
		return 0
	}

	advanced := 0
	for _, t := range due {
		var next models.TournamentStatus
		switch t.Status {
		case models.StatusPublished:
			next = models.StatusRegistrationOpen
		case models.StatusRegistrationOpen:
			next = models.StatusRegistrationClosed
		default:
			continue
		}
		if _, err := s.Transition(ctx, t.ID, next, 0); err != nil {
			if s.logger != nil {
				s.logger.Error("status sweep transition failed",
					slog.Int("tournament_id", t.ID),
					slog.String("next", string(next)),
					slog.Any("error", err))
			}
			continue
		}
		advanced++
	}
	return advanced
}
