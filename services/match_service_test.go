package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type matchFixture struct {
	svc      MatchService
	repo     *fakeTournamentRepo
	matches  *fakeMatchRepo
	disputes *fakeDisputeRepo
	audit    *fakeAuditRepo
	brackets *fakeBrackets
	sched    *scheduler.Scheduler
	clock    *fakeClock
	pub      *fakePublisher
	tn       *models.Tournament
	match    *models.Match
}

// newMatchFixture wires the result protocol against a live tournament with a
// single ready match between alice and bob.
func newMatchFixture(t *testing.T, format models.TournamentFormat) *matchFixture {
	t.Helper()
	clock := newFakeClock()
	repo := newFakeTournamentRepo()
	matches := newFakeMatchRepo()
	disputes := newFakeDisputeRepo()
	audit := &fakeAuditRepo{}
	runner := NewRunner(nil)
	t.Cleanup(runner.Shutdown)
	sched := scheduler.New(clock, time.Second, nil)
	pub := &fakePublisher{}

	tn := &models.Tournament{Name: "Cup", Format: format, Status: models.StatusLive}
	require.NoError(t, repo.Create(context.Background(), tn))
	tn.Status = models.StatusLive
	repo.tournaments[tn.ID].Status = models.StatusLive

	graph := models.NewCompetitionGraph(tn.ID, format)
	m := models.NewMatch(tn.ID, 0, 1)
	alice, bob := "alice", "bob"
	m.Participant1, m.Participant2 = &alice, &bob
	m.State = models.MatchReady
	graph.AddMatch(m)
	brackets := &fakeBrackets{graph: graph}

	svc := NewMatchService(repo, matches, disputes, audit, brackets, runner, sched, clock, pub, nil, 15*time.Minute)
	return &matchFixture{
		svc:      svc,
		repo:     repo,
		matches:  matches,
		disputes: disputes,
		audit:    audit,
		brackets: brackets,
		sched:    sched,
		clock:    clock,
		pub:      pub,
		tn:       tn,
		match:    m,
	}
}

func TestSubmitResultStartsAutoConfirm(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	err := f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.MatchPendingResult, f.match.State)
	assert.Equal(t, 1, f.sched.Pending())
	assert.Len(t, f.pub.ofType(models.EventResultSubmitted), 1)
	assert.Nil(t, f.brackets.lastFinalize())
}

func TestFirstSubmissionMarksTheMatchLive(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil))

	// The match passes through live on its way to pending_result; the
	// second report must not revisit it.
	assert.Equal(t, []models.MatchState{models.MatchLive, models.MatchPendingResult}, f.matches.history[f.match.ID])

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "bob", models.Score{P1: 2, P2: 1}, nil))
	assert.Equal(t, []models.MatchState{models.MatchLive, models.MatchPendingResult}, f.matches.history[f.match.ID])
}

func TestAgreeingSubmissionsFinalize(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil))
	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "bob", models.Score{P1: 2, P2: 1}, nil))

	call := f.brackets.lastFinalize()
	require.NotNil(t, call)
	assert.Equal(t, f.match.ID, call.matchID)
	assert.Equal(t, models.MatchCompleted, call.state)
	assert.Equal(t, models.Score{P1: 2, P2: 1}, *call.score)
	// The countdown died with the agreement.
	assert.Equal(t, 0, f.sched.Pending())
}

func TestConflictingSubmissionsOpenDispute(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil))
	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "bob", models.Score{P1: 0, P2: 2}, nil))

	assert.Equal(t, models.MatchDisputed, f.match.State)
	assert.Nil(t, f.brackets.lastFinalize())
	assert.Len(t, f.pub.ofType(models.EventDisputeOpened), 1)

	_, err := f.disputes.GetOpenByMatch(ctx, f.match.ID)
	assert.NoError(t, err)
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil))
	err := f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestOutsiderCannotSubmit(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	err := f.svc.SubmitResult(context.Background(), f.tn.ID, f.match.ID, "mallory", models.Score{P1: 2, P2: 1}, nil)
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestDrawRejectedInElimination(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	err := f.svc.SubmitResult(context.Background(), f.tn.ID, f.match.ID, "alice", models.Score{P1: 1, P2: 1}, nil)
	assert.ErrorIs(t, err, ErrScoreDrawForbidden)
}

func TestDrawAllowedInRoundRobin(t *testing.T) {
	f := newMatchFixture(t, models.FormatRoundRobin)
	err := f.svc.SubmitResult(context.Background(), f.tn.ID, f.match.ID, "alice", models.Score{P1: 1, P2: 1}, nil)
	assert.NoError(t, err)
}

func TestConfirmAcceptsOpponentReport(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 1}, nil))
	require.NoError(t, f.svc.ConfirmResult(ctx, f.tn.ID, f.match.ID, "bob"))

	call := f.brackets.lastFinalize()
	require.NotNil(t, call)
	assert.Equal(t, models.Score{P1: 2, P2: 1}, *call.score)
	assert.Equal(t, 0, f.sched.Pending())
}

func TestConfirmWithoutSubmissionFails(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	err := f.svc.ConfirmResult(context.Background(), f.tn.ID, f.match.ID, "bob")
	assert.ErrorIs(t, err, ErrMatchNotActable)
}

func TestAutoConfirmFinalizesUnansweredReport(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))

	f.clock.advance(16 * time.Minute)
	require.Equal(t, 1, f.sched.FireDue(f.clock.Now()))

	require.Eventually(t, func() bool {
		return f.brackets.lastFinalize() != nil
	}, time.Second, 5*time.Millisecond)
	call := f.brackets.lastFinalize()
	assert.Equal(t, models.Score{P1: 2, P2: 0}, *call.score)
	assert.Equal(t, models.MatchCompleted, call.state)
}

func TestSubmissionAfterAutoConfirmIsRejected(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	f.clock.advance(16 * time.Minute)
	require.Equal(t, 1, f.sched.FireDue(f.clock.Now()))
	require.Eventually(t, func() bool {
		return f.brackets.lastFinalize() != nil
	}, time.Second, 5*time.Millisecond)

	err := f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "bob", models.Score{P1: 0, P2: 2}, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExplicitDisputeStopsAutoConfirm(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", []string{"evidence/screenshot.png"})
	require.NoError(t, err)
	assert.Equal(t, models.Side2, dispute.OpenedBy)

	f.clock.advance(time.Hour)
	assert.Equal(t, 0, f.sched.FireDue(f.clock.Now()))
	assert.Nil(t, f.brackets.lastFinalize())
}

func TestSecondDisputeRejected(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	_, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	require.NoError(t, err)

	_, err = f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	assert.ErrorIs(t, err, ErrMatchNotActable)
}

func TestResolveDisputeForSubmitter(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveDispute(ctx, f.tn.ID, dispute.ID, models.RulingForSubmitter, 9))

	call := f.brackets.lastFinalize()
	require.NotNil(t, call)
	assert.Equal(t, models.Score{P1: 2, P2: 0}, *call.score)
	assert.Equal(t, models.MatchCompleted, call.state)
	assert.Len(t, f.audit.entries, 1)
}

func TestResolveDisputeForOpponentWithoutCounterReport(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveDispute(ctx, f.tn.ID, dispute.ID, models.RulingForOpponent, 9))

	call := f.brackets.lastFinalize()
	require.NotNil(t, call)
	// No counter-report to honor, so the opponent wins by forfeit score.
	assert.Equal(t, models.Score{P1: 0, P2: 1}, *call.score)
	assert.Equal(t, models.MatchForfeit, call.state)
}

func TestCancelledDisputeReopensTheMatch(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveDispute(ctx, f.tn.ID, dispute.ID, models.RulingCancelled, 9))

	assert.Equal(t, models.MatchLive, f.match.State)
	assert.Empty(t, f.match.Submissions)
	assert.Contains(t, f.matches.deleted, f.match.ID)
	assert.Nil(t, f.brackets.lastFinalize())
}

func TestFrozenTournamentBlocksResultProtocol(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()
	f.repo.mu.Lock()
	f.repo.tournaments[f.tn.ID].Status = models.StatusFrozen
	f.repo.mu.Unlock()

	err := f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil)
	assert.ErrorIs(t, err, ErrTournamentFrozen)
	assert.ErrorIs(t, f.svc.CheckIn(ctx, f.tn.ID, f.match.ID, "alice"), ErrTournamentFrozen)
	assert.ErrorIs(t, f.svc.ConfirmResult(ctx, f.tn.ID, f.match.ID, "bob"), ErrTournamentFrozen)
}

func TestForceResolveWorksWhileFrozen(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()
	f.repo.mu.Lock()
	f.repo.tournaments[f.tn.ID].Status = models.StatusFrozen
	f.repo.mu.Unlock()

	score := models.Score{P1: 1, P2: 0}
	require.NoError(t, f.svc.ForceResolve(ctx, f.tn.ID, f.match.ID, 9, &score, models.MatchCompleted))

	call := f.brackets.lastFinalize()
	require.NotNil(t, call)
	assert.Equal(t, models.MatchCompleted, call.state)
	assert.Len(t, f.pub.ofType(models.EventMatchForceResolved), 1)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "match.force_resolve", f.audit.entries[0].Action)
}

func TestForceResolveCancelsOpenDispute(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", nil)
	require.NoError(t, err)

	score := models.Score{P1: 0, P2: 1}
	require.NoError(t, f.svc.ForceResolve(ctx, f.tn.ID, f.match.ID, 9, &score, models.MatchCompleted))

	stored, err := f.disputes.GetByID(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RulingCancelled, stored.Ruling)
}

func TestForceResolveRequiresTerminalOutcome(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	err := f.svc.ForceResolve(context.Background(), f.tn.ID, f.match.ID, 9, nil, models.MatchLive)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestAddEvidenceAppendsToOpenDispute(t *testing.T) {
	f := newMatchFixture(t, models.FormatSingleElimination)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitResult(ctx, f.tn.ID, f.match.ID, "alice", models.Score{P1: 2, P2: 0}, nil))
	dispute, err := f.svc.OpenDispute(ctx, f.tn.ID, f.match.ID, "bob", []string{"evidence/one.png"})
	require.NoError(t, err)

	require.NoError(t, f.svc.AddEvidence(ctx, f.tn.ID, dispute.ID, "evidence/two.mp4"))

	stored, err := f.disputes.GetByID(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"evidence/one.png", "evidence/two.mp4"}, stored.EvidenceKeys)
}
