package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/competition-engine/models"
)

var ErrStandingNotFound = errors.New("standing not found")

type StandingRepository interface {
	// Upsert replaces the stored row for (tournament, group, participant).
	Upsert(ctx context.Context, exec SQLExecutor, standing *models.Standing) error
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error)
	ListByGroup(ctx context.Context, tournamentID, groupID int) ([]models.Standing, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresStandingRepository) Upsert(ctx context.Context, exec SQLExecutor, s *models.Standing) error {
	executor := r.getExecutor(exec)
	criteria, err := json.Marshal(s.Criteria)
	if err != nil {
		return fmt.Errorf("failed to encode standing criteria: %w", err)
	}
	_, err = executor.ExecContext(ctx,
		`INSERT INTO standings (
			tournament_id, group_id, participant_ref,
			played, wins, draws, losses, criteria, rank, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (tournament_id, group_id, participant_ref) DO UPDATE SET
			played = $4, wins = $5, draws = $6, losses = $7,
			criteria = $8, rank = $9, updated_at = NOW()`,
		s.TournamentID, s.GroupID, s.ParticipantID,
		s.Played, s.Wins, s.Draws, s.Losses, criteria, s.Rank,
	)
	return err
}

func scanStanding(row interface{ Scan(...interface{}) error }) (*models.Standing, error) {
	s := &models.Standing{}
	var criteria []byte
	err := row.Scan(
		&s.TournamentID, &s.GroupID, &s.ParticipantID,
		&s.Played, &s.Wins, &s.Draws, &s.Losses, &criteria, &s.Rank, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Criteria = make(map[string]float64)
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &s.Criteria); err != nil {
			return nil, fmt.Errorf("failed to decode standing criteria: %w", err)
		}
	}
	return s, nil
}

const standingColumns = `
	tournament_id, group_id, participant_ref,
	played, wins, draws, losses, criteria, rank, updated_at`

func (r *postgresStandingRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	return r.list(ctx,
		`SELECT`+standingColumns+` FROM standings
		 WHERE tournament_id = $1
		 ORDER BY group_id, rank NULLS LAST, participant_ref`,
		tournamentID)
}

func (r *postgresStandingRepository) ListByGroup(ctx context.Context, tournamentID, groupID int) ([]models.Standing, error) {
	return r.list(ctx,
		`SELECT`+standingColumns+` FROM standings
		 WHERE tournament_id = $1 AND group_id = $2
		 ORDER BY rank NULLS LAST, participant_ref`,
		tournamentID, groupID)
}

func (r *postgresStandingRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Standing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := []models.Standing{}
	for rows.Next() {
		s, err := scanStanding(rows)
		if err != nil {
			return nil, err
		}
		standings = append(standings, *s)
	}
	return standings, rows.Err()
}

func (r *postgresStandingRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM standings WHERE tournament_id = $1`, tournamentID,
	)
	return err
}
