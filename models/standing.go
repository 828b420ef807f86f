package models

import "time"

// Standing is one participant's row in a group or Swiss table. Criteria maps
// criterion tags (points, score_diff, buchholz, ...) to the numeric values
// the tiebreak resolver compares.
type Standing struct {
	TournamentID  int                `json:"tournament_id" db:"tournament_id"`
	GroupID       int                `json:"group_id" db:"group_id"`
	ParticipantID string             `json:"participant_id" db:"participant_id"`
	Played        int                `json:"played" db:"played"`
	Wins          int                `json:"wins" db:"wins"`
	Draws         int                `json:"draws" db:"draws"`
	Losses        int                `json:"losses" db:"losses"`
	Criteria      map[string]float64 `json:"criteria" db:"-"`
	Rank          *int               `json:"rank,omitempty" db:"rank"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

func NewStanding(tournamentID, groupID int, participantID string) *Standing {
	return &Standing{
		TournamentID:  tournamentID,
		GroupID:       groupID,
		ParticipantID: participantID,
		Criteria:      make(map[string]float64),
		UpdatedAt:     time.Now(),
	}
}

// Criterion returns the stored value for a tag, zero when absent.
func (s *Standing) Criterion(tag string) float64 {
	return s.Criteria[tag]
}
