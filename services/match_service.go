package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/Dosada05/competition-engine/scheduler"
	"github.com/google/uuid"
)

// MatchService runs the result protocol: check-in, dual-confirmation result
// reporting, disputes and organizer overrides. Every mutation goes through
// the owning tournament's runner lane.
type MatchService interface {
	Get(ctx context.Context, tournamentID int, matchID uuid.UUID) (*models.Match, error)
	List(ctx context.Context, tournamentID int) ([]models.Match, error)

	CheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string) error

	// SubmitResult records one side's reported score. The first submission
	// marks the match live and starts the auto-confirm countdown; a
	// matching second submission
	// finalizes the match, a conflicting one opens a dispute.
	SubmitResult(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string, score models.Score, proofKey *string) error

	// ConfirmResult accepts the opponent's pending submission as-is.
	ConfirmResult(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string) error

	// OpenDispute contests the pending submission without counter-reporting.
	OpenDispute(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string, evidenceKeys []string) (*models.DisputeRecord, error)

	AddEvidence(ctx context.Context, tournamentID int, disputeID uuid.UUID, evidenceKey string) error

	ResolveDispute(ctx context.Context, tournamentID int, disputeID uuid.UUID, ruling models.DisputeRuling, actorID int) error

	// ForceResolve is the organizer override. It is the only mutation
	// permitted while the tournament is frozen and is always audited.
	ForceResolve(ctx context.Context, tournamentID int, matchID uuid.UUID, actorID int, score *models.Score, outcome models.MatchState) error
}

type matchService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	disputeRepo    repositories.DisputeRepository
	auditRepo      repositories.AuditRepository
	brackets       BracketService
	runner         *Runner
	sched          *scheduler.Scheduler
	clock          scheduler.Clock
	events         EventPublisher
	logger         *slog.Logger
	autoConfirm    time.Duration
}

func NewMatchService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	disputeRepo repositories.DisputeRepository,
	auditRepo repositories.AuditRepository,
	brackets BracketService,
	runner *Runner,
	sched *scheduler.Scheduler,
	clock scheduler.Clock,
	events EventPublisher,
	logger *slog.Logger,
	autoConfirm time.Duration,
) MatchService {
	if clock == nil {
		clock = scheduler.RealClock()
	}
	return &matchService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		disputeRepo:    disputeRepo,
		auditRepo:      auditRepo,
		brackets:       brackets,
		runner:         runner,
		sched:          sched,
		clock:          clock,
		events:         events,
		logger:         logger,
		autoConfirm:    autoConfirm,
	}
}

func (s *matchService) Get(ctx context.Context, tournamentID int, matchID uuid.UUID) (*models.Match, error) {
	graph, err := s.brackets.Graph(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	m := graph.Match(matchID)
	if m == nil {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

func (s *matchService) List(ctx context.Context, tournamentID int) ([]models.Match, error) {
	return s.matchRepo.ListByTournament(ctx, tournamentID)
}

// requireActable loads the tournament and rejects any mutation while it is
// not live. Frozen gets its own sentinel so callers can tell the killswitch
// apart from an ordinary state problem.
func (s *matchService) requireActable(ctx context.Context, tournamentID int) error {
	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return mapTournamentRepoError(err)
	}
	switch t.Status {
	case models.StatusLive:
		return nil
	case models.StatusFrozen:
		return ErrTournamentFrozen
	default:
		return fmt.Errorf("%w: tournament is %s", ErrMatchNotActable, t.Status)
	}
}

func (s *matchService) CheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string) error {
	return s.runner.Do(ctx, tournamentID, func() error {
		if err := s.requireActable(ctx, tournamentID); err != nil {
			return err
		}
		m, err := s.Get(ctx, tournamentID, matchID)
		if err != nil {
			return err
		}
		side := m.SideOf(actorRef)
		if side == models.SideNone {
			return ErrNotAParticipant
		}
		return s.brackets.NoteCheckIn(ctx, tournamentID, matchID, side)
	})
}

func (s *matchService) SubmitResult(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string, score models.Score, proofKey *string) error {
	return s.runner.Do(ctx, tournamentID, func() error {
		if err := s.requireActable(ctx, tournamentID); err != nil {
			return err
		}
		graph, err := s.brackets.Graph(ctx, tournamentID)
		if err != nil {
			return err
		}
		m := graph.Match(matchID)
		if m == nil {
			return ErrMatchNotFound
		}
		side := m.SideOf(actorRef)
		if side == models.SideNone {
			return ErrNotAParticipant
		}
		switch m.State {
		case models.MatchReady, models.MatchLive, models.MatchPendingResult:
		default:
			return fmt.Errorf("%w: submit from %s", ErrMatchNotActable, m.State)
		}
		if score.Draw() && !drawAllowed(graph, m) {
			return ErrScoreDrawForbidden
		}
		if _, dup := m.Submissions[side]; dup {
			return ErrAlreadySubmitted
		}
		if m.State == models.MatchReady {
			// The first report is also the signal that play started.
			if err := s.matchRepo.UpdateState(ctx, nil, m.ID, models.MatchReady, models.MatchLive); err != nil {
				return mapMatchRepoError(err)
			}
			m.State = models.MatchLive
		}

		sub := &models.ResultSubmission{
			ID:                  uuid.New(),
			MatchID:             matchID,
			Side:                side,
			Score:               score,
			ProofKey:            proofKey,
			SubmittedAt:         s.clock.Now(),
			AutoConfirmDeadline: s.clock.Now().Add(s.autoConfirm),
		}
		if err := s.matchRepo.CreateSubmission(ctx, nil, sub); err != nil {
			return mapMatchRepoError(err)
		}
		m.Submissions[side] = sub

		other, hasOther := m.Submissions[side.Opposing()]
		if !hasOther {
			return s.startConfirmation(ctx, m, sub)
		}

		// Second report. Scores are already normalized to the side-1
		// perspective, so agreement is direct equality.
		s.cancelAutoConfirm(other)
		if score.Equal(other.Score) {
			return s.brackets.FinalizeMatch(ctx, tournamentID, matchID, &score, models.MatchCompleted)
		}
		_, err = s.openDispute(ctx, m, side, nil)
		return err
	})
}

func (s *matchService) startConfirmation(ctx context.Context, m *models.Match, sub *models.ResultSubmission) error {
	if m.State != models.MatchPendingResult {
		if err := s.matchRepo.UpdateState(ctx, nil, m.ID, m.State, models.MatchPendingResult); err != nil {
			return mapMatchRepoError(err)
		}
		m.State = models.MatchPendingResult
	}

	tournamentID := m.TournamentID
	matchID := m.ID
	timerID := s.sched.Schedule(tournamentID, scheduler.KindAutoConfirm, &matchID, s.autoConfirm, func(fire scheduler.Fire) {
		err := s.runner.Do(context.Background(), tournamentID, func() error {
			return s.autoConfirmExpired(context.Background(), tournamentID, matchID)
		})
		if err != nil && !errors.Is(err, ErrRunnerClosed) && s.logger != nil {
			s.logger.Error("auto-confirm expiry failed",
				slog.String("match_id", matchID.String()), slog.Any("error", err))
		}
	})
	sub.TimerID = &timerID

	s.events.Publish(models.NewEvent(models.EventResultSubmitted, tournamentID).
		WithMatch(matchID).
		With("side", int(sub.Side)).
		With("auto_confirm_deadline", sub.AutoConfirmDeadline))
	return nil
}

// autoConfirmExpired finalizes a still-unconfirmed submission with the
// submitter's score.
func (s *matchService) autoConfirmExpired(ctx context.Context, tournamentID int, matchID uuid.UUID) error {
	m, err := s.Get(ctx, tournamentID, matchID)
	if err != nil {
		return err
	}
	if m.State != models.MatchPendingResult {
		return nil
	}
	sub := soleSubmission(m)
	if sub == nil {
		return nil
	}
	score := sub.Score
	return s.brackets.FinalizeMatch(ctx, tournamentID, matchID, &score, models.MatchCompleted)
}

func (s *matchService) ConfirmResult(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string) error {
	return s.runner.Do(ctx, tournamentID, func() error {
		if err := s.requireActable(ctx, tournamentID); err != nil {
			return err
		}
		m, err := s.Get(ctx, tournamentID, matchID)
		if err != nil {
			return err
		}
		if m.State != models.MatchPendingResult {
			return fmt.Errorf("%w: confirm from %s", ErrMatchNotActable, m.State)
		}
		side := m.SideOf(actorRef)
		if side == models.SideNone {
			return ErrNotAParticipant
		}
		sub, ok := m.Submissions[side.Opposing()]
		if !ok {
			return ErrNoSubmission
		}
		s.cancelAutoConfirm(sub)
		score := sub.Score
		return s.brackets.FinalizeMatch(ctx, tournamentID, matchID, &score, models.MatchCompleted)
	})
}

func (s *matchService) OpenDispute(ctx context.Context, tournamentID int, matchID uuid.UUID, actorRef string, evidenceKeys []string) (*models.DisputeRecord, error) {
	var dispute *models.DisputeRecord
	err := s.runner.Do(ctx, tournamentID, func() error {
		if err := s.requireActable(ctx, tournamentID); err != nil {
			return err
		}
		m, err := s.Get(ctx, tournamentID, matchID)
		if err != nil {
			return err
		}
		if m.State != models.MatchPendingResult {
			return fmt.Errorf("%w: dispute from %s", ErrMatchNotActable, m.State)
		}
		side := m.SideOf(actorRef)
		if side == models.SideNone {
			return ErrNotAParticipant
		}
		if sub := soleSubmission(m); sub != nil {
			s.cancelAutoConfirm(sub)
		}
		dispute, err = s.openDispute(ctx, m, side, evidenceKeys)
		return err
	})
	return dispute, err
}

func (s *matchService) openDispute(ctx context.Context, m *models.Match, openedBy models.MatchSide, evidenceKeys []string) (*models.DisputeRecord, error) {
	dispute := &models.DisputeRecord{
		ID:           uuid.New(),
		MatchID:      m.ID,
		OpenedBy:     openedBy,
		EvidenceKeys: append([]string(nil), evidenceKeys...),
		Ruling:       models.RulingPending,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.disputeRepo.Create(ctx, nil, dispute); err != nil {
		if errors.Is(err, repositories.ErrDisputeConflict) {
			return nil, ErrDisputeOpen
		}
		return nil, err
	}
	if err := s.matchRepo.UpdateState(ctx, nil, m.ID, m.State, models.MatchDisputed); err != nil {
		return nil, mapMatchRepoError(err)
	}
	m.State = models.MatchDisputed
	m.Dispute = dispute

	s.events.Publish(models.NewEvent(models.EventDisputeOpened, m.TournamentID).
		WithMatch(m.ID).
		With("dispute_id", dispute.ID).
		With("opened_by", int(openedBy)))
	if s.logger != nil {
		s.logger.Info("dispute opened",
			slog.Int("tournament_id", m.TournamentID),
			slog.String("match_id", m.ID.String()),
			slog.String("dispute_id", dispute.ID.String()))
	}
	return dispute, nil
}

func (s *matchService) AddEvidence(ctx context.Context, tournamentID int, disputeID uuid.UUID, evidenceKey string) error {
	return s.runner.Do(ctx, tournamentID, func() error {
		if err := s.disputeRepo.AppendEvidence(ctx, nil, disputeID, evidenceKey); err != nil {
			if errors.Is(err, repositories.ErrDisputeNotFound) {
				return ErrDisputeNotFound
			}
			return err
		}
		return nil
	})
}

func (s *matchService) ResolveDispute(ctx context.Context, tournamentID int, disputeID uuid.UUID, ruling models.DisputeRuling, actorID int) error {
	if !ruling.Terminal() {
		return fmt.Errorf("%w: ruling %s is not terminal", ErrValidationFailed, ruling)
	}
	return s.runner.Do(ctx, tournamentID, func() error {
		dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
		if err != nil {
			if errors.Is(err, repositories.ErrDisputeNotFound) {
				return ErrDisputeNotFound
			}
			return err
		}
		if dispute.Ruling.Terminal() {
			return fmt.Errorf("%w: dispute already %s", ErrMatchNotActable, dispute.Ruling)
		}
		m, err := s.Get(ctx, tournamentID, dispute.MatchID)
		if err != nil {
			return err
		}
		if m.State != models.MatchDisputed {
			return fmt.Errorf("%w: resolve from %s", ErrMatchNotActable, m.State)
		}

		if err := s.disputeRepo.Resolve(ctx, nil, disputeID, ruling, s.clock.Now()); err != nil {
			return err
		}
		if m.Dispute != nil && m.Dispute.ID == disputeID {
			m.Dispute.Ruling = ruling
		}
		s.events.Publish(models.NewEvent(models.EventDisputeResolved, tournamentID).
			WithMatch(m.ID).
			With("dispute_id", disputeID).
			With("ruling", string(ruling)))

		s.audit(ctx, tournamentID, &m.ID, actorID, "dispute.resolve",
			fmt.Sprintf("dispute %s ruled %s", disputeID, ruling))

		switch ruling {
		case models.RulingCancelled:
			// Back to square one: both reports are discarded and the match
			// is playable again.
			if err := s.matchRepo.DeleteSubmissions(ctx, nil, m.ID); err != nil {
				return mapMatchRepoError(err)
			}
			m.Submissions = make(map[models.MatchSide]*models.ResultSubmission)
			if err := s.matchRepo.UpdateState(ctx, nil, m.ID, models.MatchDisputed, models.MatchLive); err != nil {
				return mapMatchRepoError(err)
			}
			m.State = models.MatchLive
			return nil
		case models.RulingForSubmitter:
			return s.finalizeFromRuling(ctx, tournamentID, m, dispute.OpenedBy.Opposing())
		case models.RulingForOpponent:
			return s.finalizeFromRuling(ctx, tournamentID, m, dispute.OpenedBy)
		}
		return nil
	})
}

// finalizeFromRuling settles a disputed match in favor of the given side,
// using that side's own report when it exists and a forfeit score otherwise.
func (s *matchService) finalizeFromRuling(ctx context.Context, tournamentID int, m *models.Match, winner models.MatchSide) error {
	if sub, ok := m.Submissions[winner]; ok {
		score := sub.Score
		return s.brackets.FinalizeMatch(ctx, tournamentID, m.ID, &score, models.MatchCompleted)
	}
	score := models.Score{P1: 1, P2: 0}
	if winner == models.Side2 {
		score = models.Score{P1: 0, P2: 1}
	}
	return s.brackets.FinalizeMatch(ctx, tournamentID, m.ID, &score, models.MatchForfeit)
}

func (s *matchService) ForceResolve(ctx context.Context, tournamentID int, matchID uuid.UUID, actorID int, score *models.Score, outcome models.MatchState) error {
	if !outcome.Terminal() {
		return fmt.Errorf("%w: outcome %s is not terminal", ErrValidationFailed, outcome)
	}
	return s.runner.Do(ctx, tournamentID, func() error {
		t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.StatusLive && t.Status != models.StatusFrozen {
			return fmt.Errorf("%w: tournament is %s", ErrMatchNotActable, t.Status)
		}
		m, err := s.Get(ctx, tournamentID, matchID)
		if err != nil {
			return err
		}
		if m.State.Terminal() {
			return fmt.Errorf("%w: match already %s", ErrMatchNotActable, m.State)
		}

		if dispute, err := s.disputeRepo.GetOpenByMatch(ctx, matchID); err == nil {
			if rerr := s.disputeRepo.Resolve(ctx, nil, dispute.ID, models.RulingCancelled, s.clock.Now()); rerr != nil {
				return rerr
			}
		} else if !errors.Is(err, repositories.ErrDisputeNotFound) {
			return err
		}
		for _, sub := range m.Submissions {
			s.cancelAutoConfirm(sub)
		}

		s.audit(ctx, tournamentID, &matchID, actorID, "match.force_resolve",
			fmt.Sprintf("forced to %s", outcome))
		if err := s.brackets.FinalizeMatch(ctx, tournamentID, matchID, score, outcome); err != nil {
			return err
		}
		s.events.Publish(models.NewEvent(models.EventMatchForceResolved, tournamentID).
			WithMatch(matchID).
			With("actor_id", actorID).
			With("outcome", string(outcome)))
		return nil
	})
}

func (s *matchService) cancelAutoConfirm(sub *models.ResultSubmission) {
	if sub != nil && sub.TimerID != nil {
		s.sched.Cancel(*sub.TimerID)
		sub.TimerID = nil
	}
}

func (s *matchService) audit(ctx context.Context, tournamentID int, matchID *uuid.UUID, actorID int, action, detail string) {
	entry := models.NewAuditEntry(tournamentID, actorID, action, detail)
	entry.MatchID = matchID
	if err := s.auditRepo.Create(ctx, nil, entry); err != nil && s.logger != nil {
		s.logger.Error("failed to write audit entry",
			slog.Int("tournament_id", tournamentID),
			slog.String("action", action),
			slog.Any("error", err))
	}
}

// drawAllowed reports whether a tied score is legal for this match. Knockout
// positions must produce a winner.
func drawAllowed(graph *models.CompetitionGraph, m *models.Match) bool {
	switch graph.Format {
	case models.FormatRoundRobin, models.FormatSwiss:
		return true
	case models.FormatGroupThenBracket:
		node := graph.Node(m.NodeIndex)
		return node != nil && node.Side == models.SideGroups
	}
	return false
}

func soleSubmission(m *models.Match) *models.ResultSubmission {
	if len(m.Submissions) != 1 {
		return nil
	}
	for _, sub := range m.Submissions {
		return sub
	}
	return nil
}
