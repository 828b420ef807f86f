package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/competition-engine/models"
)

var ErrGraphNotFound = errors.New("competition graph not found")

// GraphRepository persists competition graphs as JSONB snapshots. The graph
// is the engine's working state; matches are additionally stored row-per-row
// by MatchRepository for querying, but the arena layout round-trips through
// here.
type GraphRepository interface {
	Save(ctx context.Context, exec SQLExecutor, graph *models.CompetitionGraph) error
	Get(ctx context.Context, tournamentID int) (*models.CompetitionGraph, error)
	Delete(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresGraphRepository struct {
	db *sql.DB
}

func NewPostgresGraphRepository(db *sql.DB) GraphRepository {
	return &postgresGraphRepository{db: db}
}

func (r *postgresGraphRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresGraphRepository) Save(ctx context.Context, exec SQLExecutor, graph *models.CompetitionGraph) error {
	executor := r.getExecutor(exec)
	payload, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to encode competition graph: %w", err)
	}
	_, err = executor.ExecContext(ctx,
		`INSERT INTO competition_graphs (tournament_id, snapshot, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (tournament_id) DO UPDATE SET snapshot = $2, updated_at = NOW()`,
		graph.TournamentID, payload,
	)
	return err
}

func (r *postgresGraphRepository) Get(ctx context.Context, tournamentID int) (*models.CompetitionGraph, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT snapshot FROM competition_graphs WHERE tournament_id = $1`,
		tournamentID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGraphNotFound
		}
		return nil, err
	}

	// NewCompetitionGraph seeds the match set; the snapshot holds only the
	// arena, matches are rehydrated from their own table by the caller.
	graph := models.NewCompetitionGraph(tournamentID, "")
	if err := json.Unmarshal(payload, graph); err != nil {
		return nil, fmt.Errorf("failed to decode competition graph: %w", err)
	}
	return graph, nil
}

func (r *postgresGraphRepository) Delete(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM competition_graphs WHERE tournament_id = $1`, tournamentID,
	)
	return err
}
