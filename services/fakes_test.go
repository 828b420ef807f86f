package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *fakePublisher) Publish(ev models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) ofType(t models.EventType) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]*models.Tournament
	entrants    map[int][]models.Entrant
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{
		nextID:      1,
		tournaments: make(map[int]*models.Tournament),
		entrants:    make(map[int][]models.Entrant),
	}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = time.Now()
	clone := *t
	r.tournaments[t.ID] = &clone
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tournament
	for _, t := range r.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	clone := *t
	r.tournaments[t.ID] = &clone
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.tournaments, id)
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, expected, next models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != expected {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = next
	return nil
}

func (r *fakeTournamentRepo) UpdateFreeze(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus, frozenAt *time.Time, accum time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	t.FrozenAt = frozenAt
	t.FreezeDurationAccum = accum
	return nil
}

func (r *fakeTournamentRepo) ListDueForSweep(ctx context.Context, now time.Time) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tournament
	for _, t := range r.tournaments {
		switch {
		case t.Status == models.StatusPublished && !t.RegDate.After(now):
			out = append(out, *t)
		case t.Status == models.StatusRegistrationOpen && !t.StartDate.After(now):
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTournamentRepo) AddEntrant(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, entrant models.Entrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entrants[tournamentID] {
		if e.Ref == entrant.Ref {
			return repositories.ErrEntrantConflict
		}
	}
	r.entrants[tournamentID] = append(r.entrants[tournamentID], entrant)
	return nil
}

func (r *fakeTournamentRepo) RemoveEntrant(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entrants[tournamentID]
	for i, e := range list {
		if e.Ref == ref {
			r.entrants[tournamentID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repositories.ErrEntrantNotFound
}

func (r *fakeTournamentRepo) ListEntrants(ctx context.Context, tournamentID int) ([]models.Entrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Entrant(nil), r.entrants[tournamentID]...), nil
}

func (r *fakeTournamentRepo) CountEntrants(ctx context.Context, tournamentID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entrants[tournamentID]), nil
}

type finalizeCall struct {
	matchID uuid.UUID
	score   *models.Score
	state   models.MatchState
}

// fakeBrackets stands in for the bracket service; it serves a fixed graph
// and records mutations instead of running format engines.
type fakeBrackets struct {
	mu        sync.Mutex
	graph     *models.CompetitionGraph
	complete  bool
	generated []int
	cancelled []int
	finalized []finalizeCall
	completed []int
	genErr    error
}

func (b *fakeBrackets) GenerateForTournament(ctx context.Context, t *models.Tournament) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.genErr != nil {
		return b.genErr
	}
	b.generated = append(b.generated, t.ID)
	return nil
}

func (b *fakeBrackets) Graph(ctx context.Context, tournamentID int) (*models.CompetitionGraph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.graph == nil {
		return nil, ErrNotFound
	}
	return b.graph, nil
}

func (b *fakeBrackets) FinalizeMatch(ctx context.Context, tournamentID int, matchID uuid.UUID, score *models.Score, state models.MatchState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = append(b.finalized, finalizeCall{matchID: matchID, score: score, state: state})
	if b.graph != nil {
		if m := b.graph.Match(matchID); m != nil {
			if score != nil {
				m.ApplyScore(*score)
			}
			m.State = state
		}
	}
	return nil
}

func (b *fakeBrackets) TryComplete(ctx context.Context, tournamentID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, tournamentID)
	return nil
}

func (b *fakeBrackets) IsComplete(ctx context.Context, tournamentID int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete, nil
}

func (b *fakeBrackets) CancelOpenMatches(ctx context.Context, tournamentID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, tournamentID)
	return nil
}

func (b *fakeBrackets) ResolveCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID) error {
	return nil
}

func (b *fakeBrackets) NoteCheckIn(ctx context.Context, tournamentID int, matchID uuid.UUID, side models.MatchSide) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.graph == nil {
		return ErrMatchNotFound
	}
	m := b.graph.Match(matchID)
	if m == nil {
		return ErrMatchNotFound
	}
	if side == models.Side1 {
		m.CheckedIn1 = true
	} else {
		m.CheckedIn2 = true
	}
	return nil
}

func (b *fakeBrackets) GetTournamentOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error) {
	return nil, ErrNotFound
}

func (b *fakeBrackets) lastFinalize() *finalizeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.finalized) == 0 {
		return nil
	}
	call := b.finalized[len(b.finalized)-1]
	return &call
}

type fakeMatchRepo struct {
	mu          sync.Mutex
	states      map[uuid.UUID]models.MatchState
	history     map[uuid.UUID][]models.MatchState
	submissions []*models.ResultSubmission
	deleted     []uuid.UUID
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		states:  make(map[uuid.UUID]models.MatchState),
		history: make(map[uuid.UUID][]models.MatchState),
	}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[m.ID] = m.State
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return nil, repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error) {
	return nil, nil
}

func (r *fakeMatchRepo) UpdateState(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, expected, next models.MatchState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.states[id]; ok && current != expected {
		return repositories.ErrMatchStateConflict
	}
	r.states[id] = next
	r.history[id] = append(r.history[id], next)
	return nil
}

func (r *fakeMatchRepo) SaveResult(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[m.ID] = m.State
	return nil
}

func (r *fakeMatchRepo) UpdateCheckIn(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, side models.MatchSide) error {
	return nil
}

func (r *fakeMatchRepo) CreateSubmission(ctx context.Context, exec repositories.SQLExecutor, sub *models.ResultSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, sub)
	return nil
}

func (r *fakeMatchRepo) DeleteSubmissions(ctx context.Context, exec repositories.SQLExecutor, matchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, matchID)
	return nil
}

type fakeDisputeRepo struct {
	mu       sync.Mutex
	disputes map[uuid.UUID]*models.DisputeRecord
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{disputes: make(map[uuid.UUID]*models.DisputeRecord)}
}

func (r *fakeDisputeRepo) Create(ctx context.Context, exec repositories.SQLExecutor, d *models.DisputeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.disputes {
		if existing.MatchID == d.MatchID && existing.Ruling == models.RulingPending {
			return repositories.ErrDisputeConflict
		}
	}
	clone := *d
	r.disputes[d.ID] = &clone
	return nil
}

func (r *fakeDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, repositories.ErrDisputeNotFound
	}
	clone := *d
	return &clone, nil
}

func (r *fakeDisputeRepo) GetOpenByMatch(ctx context.Context, matchID uuid.UUID) (*models.DisputeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.disputes {
		if d.MatchID == matchID && d.Ruling == models.RulingPending {
			clone := *d
			return &clone, nil
		}
	}
	return nil, repositories.ErrDisputeNotFound
}

func (r *fakeDisputeRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.DisputeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DisputeRecord
	for _, d := range r.disputes {
		out = append(out, *d)
	}
	return out, nil
}

func (r *fakeDisputeRepo) AppendEvidence(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, evidenceKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok || d.Ruling != models.RulingPending {
		return repositories.ErrDisputeNotFound
	}
	d.EvidenceKeys = append(d.EvidenceKeys, evidenceKey)
	return nil
}

func (r *fakeDisputeRepo) Resolve(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, ruling models.DisputeRuling, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok || d.Ruling != models.RulingPending {
		return repositories.ErrDisputeNotFound
	}
	d.Ruling = ruling
	d.ResolvedAt = &resolvedAt
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (r *fakeAuditRepo) Create(ctx context.Context, exec repositories.SQLExecutor, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.TournamentID == tournamentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeStandingRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Standing
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{rows: make(map[string]*models.Standing)}
}

func (r *fakeStandingRepo) key(tournamentID, groupID int, ref string) string {
	return fmt.Sprintf("%d/%d/%s", tournamentID, groupID, ref)
}

func (r *fakeStandingRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, s *models.Standing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.rows[r.key(s.TournamentID, s.GroupID, s.ParticipantID)] = &clone
	return nil
}

func (r *fakeStandingRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Standing
	for _, s := range r.rows {
		if s.TournamentID == tournamentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeStandingRepo) ListByGroup(ctx context.Context, tournamentID, groupID int) ([]models.Standing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Standing
	for _, s := range r.rows {
		if s.TournamentID == tournamentID && s.GroupID == groupID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeStandingRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.rows {
		if s.TournamentID == tournamentID {
			delete(r.rows, k)
		}
	}
	return nil
}
