package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/competition-engine/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this organizer")

	// The stored status did not match the expected one, meaning another
	// writer transitioned the tournament first.
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")

	ErrEntrantConflict = errors.New("participant is already registered for this tournament")
	ErrEntrantNotFound = errors.New("participant registration not found")
)

type ListTournamentsFilter struct {
	OrganizerID *int
	Status      *models.TournamentStatus
	Format      *models.TournamentFormat
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, tournament *models.Tournament) error
	Delete(ctx context.Context, id int) error

	// UpdateStatus is a compare-and-set on the status column: it succeeds
	// only if the stored status still equals expected, and reports
	// ErrTournamentStatusConflict otherwise.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TournamentStatus) error

	// UpdateFreeze persists the killswitch bookkeeping together with the
	// status flip.
	UpdateFreeze(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus, frozenAt *time.Time, accum time.Duration) error

	// ListDueForSweep returns tournaments whose dates make an automatic
	// status change due at the given instant.
	ListDueForSweep(ctx context.Context, now time.Time) ([]models.Tournament, error)

	AddEntrant(ctx context.Context, exec SQLExecutor, tournamentID int, entrant models.Entrant) error
	RemoveEntrant(ctx context.Context, exec SQLExecutor, tournamentID int, ref string) error
	ListEntrants(ctx context.Context, tournamentID int) ([]models.Entrant, error)
	CountEntrants(ctx context.Context, tournamentID int) (int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, organizer_id, status, format, seeding,
	min_participants, max_participants,
	swiss_rounds, group_count, advancement_count, tiebreaker_hierarchy,
	frozen_at, freeze_duration_accum,
	reg_date, start_date, end_date, created_at`

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	var hierarchy pq.StringArray
	var accumNanos int64
	err := row.Scan(
		&t.ID, &t.Name, &t.OrganizerID, &t.Status, &t.Format, &t.Seeding,
		&t.MinParticipants, &t.MaxParticipants,
		&t.SwissRounds, &t.GroupCount, &t.AdvancementCount, &hierarchy,
		&t.FrozenAt, &accumNanos,
		&t.RegDate, &t.StartDate, &t.EndDate, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TiebreakerHierarchy = hierarchy
	t.FreezeDurationAccum = time.Duration(accumNanos)
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, organizer_id, status, format, seeding,
			min_participants, max_participants,
			swiss_rounds, group_count, advancement_count, tiebreaker_hierarchy,
			reg_date, start_date, end_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.OrganizerID, t.Status, t.Format, t.Seeding,
		t.MinParticipants, t.MaxParticipants,
		t.SwissRounds, t.GroupCount, t.AdvancementCount, pq.StringArray(t.TiebreakerHierarchy),
		t.RegDate, t.StartDate, t.EndDate,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Format != nil {
		query += fmt.Sprintf(" AND format = $%d", argID)
		args = append(args, *filter.Format)
		argID++
	}

	query += " ORDER BY start_date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := []models.Tournament{}
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			name = $1, seeding = $2,
			min_participants = $3, max_participants = $4,
			swiss_rounds = $5, group_count = $6, advancement_count = $7,
			tiebreaker_hierarchy = $8,
			reg_date = $9, start_date = $10, end_date = $11
		WHERE id = $12`

	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.Seeding,
		t.MinParticipants, t.MaxParticipants,
		t.SwissRounds, t.GroupCount, t.AdvancementCount,
		pq.StringArray(t.TiebreakerHierarchy),
		t.RegDate, t.StartDate, t.EndDate,
		t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`,
		next, id, expected,
	)
	if err != nil {
		return err
	}
	// A zero-row update is either a missing tournament or a lost race; the
	// follow-up read disambiguates.
	if err := checkAffectedRows(result, ErrTournamentStatusConflict); err != nil {
		var exists bool
		if probeErr := executor.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, id,
		).Scan(&exists); probeErr == nil && !exists {
			return ErrTournamentNotFound
		}
		return err
	}
	return nil
}

func (r *postgresTournamentRepository) UpdateFreeze(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus, frozenAt *time.Time, accum time.Duration) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1, frozen_at = $2, freeze_duration_accum = $3 WHERE id = $4`,
		status, frozenAt, int64(accum), id,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListDueForSweep(ctx context.Context, now time.Time) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE (status = $1 AND reg_date <= $2)
		   OR (status = $3 AND start_date <= $2)
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query,
		models.StatusPublished, now, models.StatusRegistrationOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := []models.Tournament{}
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) AddEntrant(ctx context.Context, exec SQLExecutor, tournamentID int, entrant models.Entrant) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`INSERT INTO entrants (tournament_id, participant_ref, rating, seed)
		 VALUES ($1, $2, $3, $4)`,
		tournamentID, entrant.Ref, entrant.Rating, entrant.Seed,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return ErrEntrantConflict
		case "foreign_key_violation":
			return ErrTournamentNotFound
		}
	}
	return err
}

func (r *postgresTournamentRepository) RemoveEntrant(ctx context.Context, exec SQLExecutor, tournamentID int, ref string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`DELETE FROM entrants WHERE tournament_id = $1 AND participant_ref = $2`,
		tournamentID, ref,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrEntrantNotFound)
}

func (r *postgresTournamentRepository) ListEntrants(ctx context.Context, tournamentID int) ([]models.Entrant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT participant_ref, rating, seed
		 FROM entrants WHERE tournament_id = $1 ORDER BY id`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entrants := []models.Entrant{}
	for rows.Next() {
		var e models.Entrant
		if err := rows.Scan(&e.Ref, &e.Rating, &e.Seed); err != nil {
			return nil, err
		}
		entrants = append(entrants, e)
	}
	return entrants, rows.Err()
}

func (r *postgresTournamentRepository) CountEntrants(ctx context.Context, tournamentID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entrants WHERE tournament_id = $1`, tournamentID,
	).Scan(&count)
	return count, err
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrTournamentNameConflict
	}
	return err
}
