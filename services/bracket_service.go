package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/Dosada05/competition-engine/scheduler"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Windows bundles the timed phases of a match.
type Windows struct {
	// CheckIn is how long both participants have to confirm presence after
	// a match is created. Zero disables the check-in phase.
	CheckIn time.Duration

	// AutoConfirm is how long the opponent has to confirm or dispute a
	// submitted result before it confirms on its own.
	AutoConfirm time.Duration
}

// TournamentOverview aggregates everything a bracket view needs.
type TournamentOverview struct {
	Tournament *models.Tournament       `json:"tournament"`
	Graph      *models.CompetitionGraph `json:"graph,omitempty"`
	Matches    []models.Match           `json:"matches"`
	Standings  []models.Standing        `json:"standings"`
	Disputes   []models.DisputeRecord   `json:"disputes"`
}

// BracketService owns the competition graphs of running tournaments. All
// mutating methods assume they are called on the owning tournament's runner
// lane; only timer callbacks post to the runner themselves.
type BracketService interface {
	// GenerateForTournament builds the graph when a tournament goes live
	// and persists it together with its initial matches.
	GenerateForTournament(ctx context.Context, tournament *models.Tournament) error

	// Graph returns the live graph, loading the persisted snapshot on a
	// cache miss.
	Graph(ctx context.Context, tournamentID int) (*models.CompetitionGraph, error)

	// FinalizeMatch applies a terminal outcome to a match, advances the
	// graph, persists and announces everything that follows from it.
	FinalizeMatch(ctx context.Context, tournamentID int, matchID uuid.UUID, score *models.Score, state models.MatchState) error

	// TryComplete flips a live tournament to completed once its graph has
	// produced a final result. Also called on killswitch resume.
	TryComplete(ctx context.Context, tournamentID int) error

	IsComplete(ctx context.Context, tournamentID int) (bool, error)

	// CancelOpenMatches voids every non-terminal match; part of the
	// cancellation cascade.
	CancelOpenMatches(ctx context.Context, tournamentID int) error

	// ResolveCheckIn settles both check-in flags against the deadline:
	// absent participants forfeit.
	ResolveCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID) error

	// NoteCheckIn flips one side's flag and readies the match when both
	// are present.
	NoteCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID, side models.MatchSide) error

	GetTournamentOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error)
}

type bracketService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	graphRepo      repositories.GraphRepository
	matchRepo      repositories.MatchRepository
	disputeRepo    repositories.DisputeRepository
	standings      StandingService
	runner         *Runner
	sched          *scheduler.Scheduler
	events         EventPublisher
	logger         *slog.Logger
	windows        Windows

	mu     sync.Mutex
	graphs map[int]*models.CompetitionGraph
}

func NewBracketService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	graphRepo repositories.GraphRepository,
	matchRepo repositories.MatchRepository,
	disputeRepo repositories.DisputeRepository,
	standings StandingService,
	runner *Runner,
	sched *scheduler.Scheduler,
	events EventPublisher,
	logger *slog.Logger,
	windows Windows,
) BracketService {
	return &bracketService{
		db:             db,
		tournamentRepo: tournamentRepo,
		graphRepo:      graphRepo,
		matchRepo:      matchRepo,
		disputeRepo:    disputeRepo,
		standings:      standings,
		runner:         runner,
		sched:          sched,
		events:         events,
		logger:         logger,
		windows:        windows,
		graphs:         make(map[int]*models.CompetitionGraph),
	}
}

func (s *bracketService) GenerateForTournament(ctx context.Context, t *models.Tournament) error {
	entrants, err := s.tournamentRepo.ListEntrants(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to list entrants for tournament %d: %w", t.ID, err)
	}

	engine, err := brackets.EngineFor(t.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	graph, err := engine.Generate(ctx, brackets.GenerateParams{Tournament: t, Entrants: entrants})
	if err != nil {
		return mapBracketError(err)
	}

	created := graph.Matches()
	if err := s.persistGeneration(ctx, graph, created); err != nil {
		return err
	}

	s.mu.Lock()
	s.graphs[t.ID] = graph
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("competition graph generated",
			slog.Int("tournament_id", t.ID),
			slog.String("format", engine.Name()),
			slog.Int("nodes", len(graph.Nodes)),
			slog.Int("initial_matches", len(created)))
	}
	for _, m := range created {
		s.activateMatch(ctx, graph, m)
	}
	return nil
}

func (s *bracketService) persistGeneration(ctx context.Context, graph *models.CompetitionGraph, created []*models.Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range created {
		if err := s.matchRepo.Create(ctx, tx, m); err != nil {
			return fmt.Errorf("failed to persist match %s: %w", m.ID, err)
		}
	}
	if err := s.graphRepo.Save(ctx, tx, graph); err != nil {
		return fmt.Errorf("failed to persist competition graph: %w", err)
	}
	return tx.Commit()
}

// activateMatch announces a freshly created match and opens its check-in
// window. With check-in disabled the match is immediately ready.
func (s *bracketService) activateMatch(ctx context.Context, graph *models.CompetitionGraph, m *models.Match) {
	s.events.Publish(models.NewEvent(models.EventMatchCreated, m.TournamentID).
		WithMatch(m.ID).
		With("round", m.Round).
		With("p1", derefString(m.Participant1)).
		With("p2", derefString(m.Participant2)))

	if s.windows.CheckIn <= 0 {
		if err := s.matchRepo.UpdateState(ctx, nil, m.ID, m.State, models.MatchReady); err == nil {
			m.State = models.MatchReady
			s.events.Publish(models.NewEvent(models.EventMatchReady, m.TournamentID).WithMatch(m.ID))
		}
		return
	}

	if err := s.matchRepo.UpdateState(ctx, nil, m.ID, m.State, models.MatchCheckIn); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to open check-in", slog.String("match_id", m.ID.String()), slog.Any("error", err))
		}
		return
	}
	m.State = models.MatchCheckIn
	matchID := m.ID
	tournamentID := m.TournamentID
	s.sched.Schedule(tournamentID, scheduler.KindCheckIn, &matchID, s.windows.CheckIn, func(fire scheduler.Fire) {
		err := s.runner.Do(context.Background(), tournamentID, func() error {
			return s.ResolveCheckIn(context.Background(), tournamentID, matchID)
		})
		if err != nil && !errors.Is(err, ErrRunnerClosed) && s.logger != nil {
			s.logger.Error("check-in expiry failed",
				slog.String("match_id", matchID.String()), slog.Any("error", err))
		}
	})
}

func (s *bracketService) Graph(ctx context.Context, tournamentID int) (*models.CompetitionGraph, error) {
	s.mu.Lock()
	graph, ok := s.graphs[tournamentID]
	s.mu.Unlock()
	if ok {
		return graph, nil
	}

	graph, err := s.graphRepo.Get(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrGraphNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Rehydrate the match set from its own table.
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		m := matches[i]
		graph.AddMatch(&m)
	}

	s.mu.Lock()
	s.graphs[tournamentID] = graph
	s.mu.Unlock()
	return graph, nil
}

func (s *bracketService) NoteCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID, side models.MatchSide) error {
	graph, err := s.Graph(ctx, tournamentID)
	if err != nil {
		return err
	}
	m := graph.Match(matchID)
	if m == nil {
		return ErrMatchNotFound
	}
	if m.State != models.MatchCheckIn {
		return fmt.Errorf("%w: check-in from %s", ErrMatchNotActable, m.State)
	}
	if err := s.matchRepo.UpdateCheckIn(ctx, nil, matchID, side); err != nil {
		return mapMatchRepoError(err)
	}
	if side == models.Side1 {
		m.CheckedIn1 = true
	} else {
		m.CheckedIn2 = true
	}
	if m.CheckedIn1 && m.CheckedIn2 {
		if err := s.matchRepo.UpdateState(ctx, nil, matchID, models.MatchCheckIn, models.MatchReady); err != nil {
			return mapMatchRepoError(err)
		}
		m.State = models.MatchReady
		s.events.Publish(models.NewEvent(models.EventMatchReady, tournamentID).WithMatch(matchID))
	}
	return nil
}

func (s *bracketService) ResolveCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID) error {
	graph, err := s.Graph(ctx, tournamentID)
	if err != nil {
		return err
	}
	m := graph.Match(matchID)
	if m == nil {
		return ErrMatchNotFound
	}
	if m.State != models.MatchCheckIn {
		// Both sides checked in before the window closed.
		return nil
	}

	switch {
	case m.CheckedIn1 && m.CheckedIn2:
		return nil
	case m.CheckedIn1:
		m.ApplyScore(models.Score{P1: 1, P2: 0})
		return s.FinalizeMatch(ctx, tournamentID, matchID, m.Score, models.MatchForfeit)
	case m.CheckedIn2:
		m.ApplyScore(models.Score{P1: 0, P2: 1})
		return s.FinalizeMatch(ctx, tournamentID, matchID, m.Score, models.MatchForfeit)
	default:
		// Neither showed up; the match is void and its dependent slot
		// resolves as a bye during advancement.
		return s.FinalizeMatch(ctx, tournamentID, matchID, nil, models.MatchCancelled)
	}
}

func (s *bracketService) FinalizeMatch(ctx context.Context, tournamentID int, matchID uuid.UUID, score *models.Score, state models.MatchState) error {
	if !state.Terminal() {
		return fmt.Errorf("%w: finalize to %s", ErrMatchNotActable, state)
	}
	graph, err := s.Graph(ctx, tournamentID)
	if err != nil {
		return err
	}
	m := graph.Match(matchID)
	if m == nil {
		return ErrMatchNotFound
	}
	if m.State.Terminal() {
		return fmt.Errorf("%w: match already %s", ErrMatchNotActable, m.State)
	}

	if score != nil {
		m.ApplyScore(*score)
	} else {
		m.Score, m.WinnerID, m.LoserID = nil, nil, nil
	}
	m.State = state

	engine, err := brackets.EngineFor(graph.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGraphInvariantViolation, err)
	}
	created, err := engine.Advance(graph, m)
	if err != nil {
		return mapBracketError(err)
	}

	if err := s.persistAdvance(ctx, graph, m, created); err != nil {
		return err
	}

	eventType := models.EventMatchCompleted
	if state == models.MatchForfeit {
		eventType = models.EventMatchForfeited
	}
	ev := models.NewEvent(eventType, tournamentID).WithMatch(matchID)
	if m.WinnerID != nil {
		ev = ev.With("winner", *m.WinnerID)
	}
	s.events.Publish(ev)

	for _, nm := range created {
		if nm.IsBracketReset {
			s.events.Publish(models.NewEvent(models.EventBracketResetCreated, tournamentID).WithMatch(nm.ID))
		}
		s.activateMatch(ctx, graph, nm)
	}

	if s.standings != nil && formatUsesHierarchy(graph.Format) {
		if err := s.standings.Recompute(ctx, graph); err != nil && s.logger != nil {
			s.logger.Error("failed to recompute standings",
				slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		} else {
			s.events.Publish(models.NewEvent(models.EventStandingsUpdated, tournamentID))
		}
	}

	if engine.IsComplete(graph) {
		if err := s.TryComplete(ctx, tournamentID); err != nil && s.logger != nil {
			s.logger.Error("failed to complete tournament",
				slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *bracketService) persistAdvance(ctx context.Context, graph *models.CompetitionGraph, m *models.Match, created []*models.Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.matchRepo.SaveResult(ctx, tx, m); err != nil {
		return mapMatchRepoError(err)
	}
	for _, nm := range created {
		if err := s.matchRepo.Create(ctx, tx, nm); err != nil {
			return fmt.Errorf("failed to persist match %s: %w", nm.ID, err)
		}
	}
	if err := s.graphRepo.Save(ctx, tx, graph); err != nil {
		return fmt.Errorf("failed to persist competition graph: %w", err)
	}
	return tx.Commit()
}

func (s *bracketService) IsComplete(ctx context.Context, tournamentID int) (bool, error) {
	graph, err := s.Graph(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	engine, err := brackets.EngineFor(graph.Format)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGraphInvariantViolation, err)
	}
	return engine.IsComplete(graph), nil
}

func (s *bracketService) TryComplete(ctx context.Context, tournamentID int) error {
	complete, err := s.IsComplete(ctx, tournamentID)
	if err != nil || !complete {
		return err
	}
	err = s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.StatusLive, models.StatusCompleted)
	if errors.Is(err, repositories.ErrTournamentStatusConflict) {
		// Frozen or already completed; resume re-runs this check.
		return nil
	}
	if err != nil {
		return mapTournamentRepoError(err)
	}
	s.sched.CancelOwner(tournamentID)
	s.events.Publish(models.NewEvent(models.EventTournamentCompleted, tournamentID))
	if s.logger != nil {
		s.logger.Info("tournament completed", slog.Int("tournament_id", tournamentID))
	}
	return nil
}

func (s *bracketService) CancelOpenMatches(ctx context.Context, tournamentID int) error {
	graph, err := s.Graph(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, m := range graph.Matches() {
		if m.State.Terminal() {
			continue
		}
		m.State = models.MatchCancelled
		m.Score, m.WinnerID, m.LoserID = nil, nil, nil
		if err := s.matchRepo.SaveResult(ctx, nil, m); err != nil {
			return mapMatchRepoError(err)
		}
	}
	return s.graphRepo.Save(ctx, nil, graph)
}

func (s *bracketService) GetTournamentOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error) {
	overview := &TournamentOverview{}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		overview.Tournament = t
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return err
		}
		overview.Matches = matches
		return nil
	})
	g.Go(func() error {
		graph, err := s.graphRepo.Get(gCtx, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrGraphNotFound) {
				return nil
			}
			return err
		}
		overview.Graph = graph
		return nil
	})
	g.Go(func() error {
		standings, err := s.standings.List(gCtx, tournamentID)
		if err != nil {
			return err
		}
		overview.Standings = standings
		return nil
	})
	g.Go(func() error {
		disputes, err := s.disputeRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return err
		}
		overview.Disputes = disputes
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}

func mapBracketError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, brackets.ErrNotEnoughParticipants),
		errors.Is(err, brackets.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	case errors.Is(err, brackets.ErrGraphInvariant):
		return fmt.Errorf("%w: %v", ErrGraphInvariantViolation, err)
	case errors.Is(err, brackets.ErrMatchNotTerminal):
		return fmt.Errorf("%w: %v", ErrMatchNotActable, err)
	default:
		return err
	}
}
