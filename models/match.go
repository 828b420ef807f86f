package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchState string

const (
	MatchScheduled     MatchState = "scheduled"
	MatchCheckIn       MatchState = "check_in"
	MatchReady         MatchState = "ready"
	MatchLive          MatchState = "live"
	MatchPendingResult MatchState = "pending_result"
	MatchDisputed      MatchState = "disputed"
	MatchCompleted     MatchState = "completed"
	MatchForfeit       MatchState = "forfeit"
	MatchCancelled     MatchState = "cancelled"
)

// Terminal reports whether the match can no longer change outcome.
func (s MatchState) Terminal() bool {
	return s == MatchCompleted || s == MatchForfeit || s == MatchCancelled
}

// MatchSide identifies one of the two participants of a match.
type MatchSide int

const (
	SideNone MatchSide = 0
	Side1    MatchSide = 1
	Side2    MatchSide = 2
)

// Opposing returns the other side.
func (s MatchSide) Opposing() MatchSide {
	switch s {
	case Side1:
		return Side2
	case Side2:
		return Side1
	}
	return SideNone
}

// Score is a reported match score, always expressed from the match's
// perspective: P1 is the side-1 participant's score regardless of who
// submitted it.
type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

func (s Score) Equal(other Score) bool {
	return s.P1 == other.P1 && s.P2 == other.P2
}

// Draw reports a tied score. Elimination matches reject draws at submission.
func (s Score) Draw() bool {
	return s.P1 == s.P2
}

// ResultSubmission is one side's reported result. The first submission of a
// match starts its auto-confirm countdown.
type ResultSubmission struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	MatchID             uuid.UUID  `json:"match_id" db:"match_id"`
	Side                MatchSide  `json:"side" db:"side"`
	Score               Score      `json:"score" db:"-"`
	ProofKey            *string    `json:"proof_key,omitempty" db:"proof_key"`
	SubmittedAt         time.Time  `json:"submitted_at" db:"submitted_at"`
	AutoConfirmDeadline time.Time  `json:"auto_confirm_deadline" db:"auto_confirm_deadline"`
	TimerID             *uuid.UUID `json:"-" db:"-"`
}

type DisputeRuling string

const (
	RulingPending      DisputeRuling = "pending"
	RulingForSubmitter DisputeRuling = "resolved_for_submitter"
	RulingForOpponent  DisputeRuling = "resolved_for_opponent"
	RulingCancelled    DisputeRuling = "cancelled"
)

func (r DisputeRuling) Terminal() bool {
	return r != RulingPending
}

// DisputeRecord is opened when the two submissions of a match disagree.
// EvidenceKeys are opaque references into the evidence store.
type DisputeRecord struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	MatchID      uuid.UUID     `json:"match_id" db:"match_id"`
	OpenedBy     MatchSide     `json:"opened_by" db:"opened_by"`
	EvidenceKeys []string      `json:"evidence_keys" db:"-"`
	Ruling       DisputeRuling `json:"ruling" db:"ruling"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

type Match struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TournamentID int        `json:"tournament_id" db:"tournament_id"`
	NodeIndex    int        `json:"node_index" db:"node_index"`
	Round        int        `json:"round" db:"round"`
	State        MatchState `json:"state" db:"state"`

	Participant1 *string `json:"participant_1,omitempty" db:"participant_1"`
	Participant2 *string `json:"participant_2,omitempty" db:"participant_2"`

	Score    *Score  `json:"score,omitempty" db:"-"`
	WinnerID *string `json:"winner_id,omitempty" db:"winner_id"`
	LoserID  *string `json:"loser_id,omitempty" db:"loser_id"`

	IsBracketReset bool    `json:"is_bracket_reset,omitempty" db:"is_bracket_reset"`
	HigherSeedID   *string `json:"higher_seed_id,omitempty" db:"higher_seed_id"`

	CheckedIn1 bool `json:"checked_in_1" db:"checked_in_1"`
	CheckedIn2 bool `json:"checked_in_2" db:"checked_in_2"`

	Submissions map[MatchSide]*ResultSubmission `json:"submissions,omitempty" db:"-"`
	Dispute     *DisputeRecord                  `json:"dispute,omitempty" db:"-"`

	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func NewMatch(tournamentID int, nodeIndex, round int) *Match {
	return &Match{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		NodeIndex:    nodeIndex,
		Round:        round,
		State:        MatchScheduled,
		Submissions:  make(map[MatchSide]*ResultSubmission),
		CreatedAt:    time.Now(),
	}
}

// SideOf maps a participant ref to its side in this match.
func (m *Match) SideOf(ref string) MatchSide {
	if m.Participant1 != nil && *m.Participant1 == ref {
		return Side1
	}
	if m.Participant2 != nil && *m.Participant2 == ref {
		return Side2
	}
	return SideNone
}

// ParticipantOf returns the ref playing on the given side.
func (m *Match) ParticipantOf(side MatchSide) *string {
	switch side {
	case Side1:
		return m.Participant1
	case Side2:
		return m.Participant2
	}
	return nil
}

// ApplyScore records a final score and derives winner/loser from it. A draw
// leaves winner and loser unset (round robin allows that).
func (m *Match) ApplyScore(score Score) {
	s := score
	m.Score = &s
	m.WinnerID, m.LoserID = nil, nil
	if score.P1 > score.P2 {
		m.WinnerID, m.LoserID = m.Participant1, m.Participant2
	} else if score.P2 > score.P1 {
		m.WinnerID, m.LoserID = m.Participant2, m.Participant1
	}
}
