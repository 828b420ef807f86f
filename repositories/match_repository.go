package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/competition-engine/models"
	"github.com/google/uuid"
)

var (
	ErrMatchNotFound = errors.New("match not found")

	// The stored state did not match the expected one.
	ErrMatchStateConflict = errors.New("match state changed concurrently")

	ErrSubmissionNotFound = errors.New("result submission not found")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error)

	// UpdateState is a compare-and-set on the state column. Every match
	// state machine step goes through it so two writers can never both
	// believe they performed the same transition.
	UpdateState(ctx context.Context, exec SQLExecutor, id uuid.UUID, expected, next models.MatchState) error

	// SaveResult persists the final score and the derived winner/loser
	// together with the terminal state flip.
	SaveResult(ctx context.Context, exec SQLExecutor, match *models.Match) error

	UpdateCheckIn(ctx context.Context, exec SQLExecutor, id uuid.UUID, side models.MatchSide) error

	CreateSubmission(ctx context.Context, exec SQLExecutor, sub *models.ResultSubmission) error
	DeleteSubmissions(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, node_index, round, state,
	participant_1, participant_2,
	score_p1, score_p2, winner_id, loser_id,
	is_bracket_reset, higher_seed_id,
	checked_in_1, checked_in_2,
	scheduled_at, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{Submissions: make(map[models.MatchSide]*models.ResultSubmission)}
	var scoreP1, scoreP2 sql.NullInt64
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.NodeIndex, &m.Round, &m.State,
		&m.Participant1, &m.Participant2,
		&scoreP1, &scoreP2, &m.WinnerID, &m.LoserID,
		&m.IsBracketReset, &m.HigherSeedID,
		&m.CheckedIn1, &m.CheckedIn2,
		&m.ScheduledAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scoreP1.Valid && scoreP2.Valid {
		m.Score = &models.Score{P1: int(scoreP1.Int64), P2: int(scoreP2.Int64)}
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			id, tournament_id, node_index, round, state,
			participant_1, participant_2,
			is_bracket_reset, higher_seed_id, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	return executor.QueryRowContext(ctx, query,
		m.ID, m.TournamentID, m.NodeIndex, m.Round, m.State,
		m.Participant1, m.Participant2,
		m.IsBracketReset, m.HigherSeedID, m.ScheduledAt,
	).Scan(&m.CreatedAt)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches WHERE tournament_id = $1
		ORDER BY round, node_index`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) UpdateState(ctx context.Context, exec SQLExecutor, id uuid.UUID, expected, next models.MatchState) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET state = $1 WHERE id = $2 AND state = $3`,
		next, id, expected,
	)
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrMatchStateConflict); err != nil {
		var exists bool
		if probeErr := executor.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, id,
		).Scan(&exists); probeErr == nil && !exists {
			return ErrMatchNotFound
		}
		return err
	}
	return nil
}

func (r *postgresMatchRepository) SaveResult(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	var scoreP1, scoreP2 interface{}
	if m.Score != nil {
		scoreP1, scoreP2 = m.Score.P1, m.Score.P2
	}
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET
			state = $1, score_p1 = $2, score_p2 = $3, winner_id = $4, loser_id = $5
		 WHERE id = $6`,
		m.State, scoreP1, scoreP2, m.WinnerID, m.LoserID, m.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateCheckIn(ctx context.Context, exec SQLExecutor, id uuid.UUID, side models.MatchSide) error {
	executor := r.getExecutor(exec)
	column := "checked_in_1"
	if side == models.Side2 {
		column = "checked_in_2"
	}
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET `+column+` = TRUE WHERE id = $1`, id,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CreateSubmission(ctx context.Context, exec SQLExecutor, sub *models.ResultSubmission) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`INSERT INTO result_submissions (
			id, match_id, side, score_p1, score_p2, proof_key,
			submitted_at, auto_confirm_deadline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.MatchID, sub.Side, sub.Score.P1, sub.Score.P2, sub.ProofKey,
		sub.SubmittedAt, sub.AutoConfirmDeadline,
	)
	return err
}

func (r *postgresMatchRepository) DeleteSubmissions(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM result_submissions WHERE match_id = $1`, matchID,
	)
	return err
}
