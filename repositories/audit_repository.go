package repositories

import (
	"context"
	"database/sql"

	"github.com/Dosada05/competition-engine/models"
)

type AuditRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.AuditEntry) error
	ListByTournament(ctx context.Context, tournamentID int) ([]models.AuditEntry, error)
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresAuditRepository) Create(ctx context.Context, exec SQLExecutor, e *models.AuditEntry) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`INSERT INTO audit_log (id, tournament_id, match_id, action, actor_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TournamentID, e.MatchID, e.Action, e.ActorID, e.Detail, e.CreatedAt,
	)
	return err
}

func (r *postgresAuditRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tournament_id, match_id, action, actor_id, detail, created_at
		 FROM audit_log WHERE tournament_id = $1 ORDER BY created_at`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.TournamentID, &e.MatchID, &e.Action, &e.ActorID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
