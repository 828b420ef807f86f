package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records a privileged override: a forced match resolution, a
// dispute ruling or an engine killswitch. Kept append-only.
type AuditEntry struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TournamentID int        `json:"tournament_id" db:"tournament_id"`
	MatchID      *uuid.UUID `json:"match_id,omitempty" db:"match_id"`
	Action       string     `json:"action" db:"action"`
	ActorID      int        `json:"actor_id" db:"actor_id"`
	Detail       string     `json:"detail,omitempty" db:"detail"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func NewAuditEntry(tournamentID, actorID int, action, detail string) *AuditEntry {
	return &AuditEntry{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Action:       action,
		ActorID:      actorID,
		Detail:       detail,
		CreatedAt:    time.Now(),
	}
}
