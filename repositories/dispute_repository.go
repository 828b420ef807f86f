package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Dosada05/competition-engine/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeConflict = errors.New("match already has an open dispute")
)

type DisputeRepository interface {
	Create(ctx context.Context, exec SQLExecutor, dispute *models.DisputeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeRecord, error)
	GetOpenByMatch(ctx context.Context, matchID uuid.UUID) (*models.DisputeRecord, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.DisputeRecord, error)
	AppendEvidence(ctx context.Context, exec SQLExecutor, id uuid.UUID, evidenceKey string) error
	Resolve(ctx context.Context, exec SQLExecutor, id uuid.UUID, ruling models.DisputeRuling, resolvedAt time.Time) error
}

type postgresDisputeRepository struct {
	db *sql.DB
}

func NewPostgresDisputeRepository(db *sql.DB) DisputeRepository {
	return &postgresDisputeRepository{db: db}
}

func (r *postgresDisputeRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresDisputeRepository) Create(ctx context.Context, exec SQLExecutor, d *models.DisputeRecord) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`INSERT INTO disputes (id, match_id, opened_by, evidence_keys, ruling, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.MatchID, d.OpenedBy, pq.StringArray(d.EvidenceKeys), d.Ruling, d.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDisputeConflict
	}
	return err
}

func scanDispute(row interface{ Scan(...interface{}) error }) (*models.DisputeRecord, error) {
	d := &models.DisputeRecord{}
	var evidence pq.StringArray
	err := row.Scan(&d.ID, &d.MatchID, &d.OpenedBy, &evidence, &d.Ruling, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	d.EvidenceKeys = evidence
	return d, nil
}

const disputeColumns = `id, match_id, opened_by, evidence_keys, ruling, created_at, resolved_at`

func (r *postgresDisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeRecord, error) {
	d, err := scanDispute(r.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *postgresDisputeRepository) GetOpenByMatch(ctx context.Context, matchID uuid.UUID) (*models.DisputeRecord, error) {
	d, err := scanDispute(r.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE match_id = $1 AND ruling = $2`,
		matchID, models.RulingPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *postgresDisputeRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.DisputeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.match_id, d.opened_by, d.evidence_keys, d.ruling, d.created_at, d.resolved_at
		 FROM disputes d
		 JOIN matches m ON m.id = d.match_id
		 WHERE m.tournament_id = $1
		 ORDER BY d.created_at`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disputes := []models.DisputeRecord{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

func (r *postgresDisputeRepository) AppendEvidence(ctx context.Context, exec SQLExecutor, id uuid.UUID, evidenceKey string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE disputes SET evidence_keys = array_append(evidence_keys, $1)
		 WHERE id = $2 AND ruling = $3`,
		evidenceKey, id, models.RulingPending,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrDisputeNotFound)
}

func (r *postgresDisputeRepository) Resolve(ctx context.Context, exec SQLExecutor, id uuid.UUID, ruling models.DisputeRuling, resolvedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE disputes SET ruling = $1, resolved_at = $2
		 WHERE id = $3 AND ruling = $4`,
		ruling, resolvedAt, id, models.RulingPending,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrDisputeNotFound)
}
