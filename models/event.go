package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an outbound notification. Events are returned from state
// transitions as intents and published to the hub after the transition has
// committed; nothing in the engine ever reacts to an inbound event.
type EventType string

const (
	EventTournamentTransitioned EventType = "tournament.transitioned"
	EventTournamentFrozen       EventType = "tournament.frozen"
	EventTournamentResumed      EventType = "tournament.resumed"
	EventTournamentCompleted    EventType = "tournament.completed"
	EventTournamentCancelled    EventType = "tournament.cancelled"
	EventRegistrationConfirmed  EventType = "tournament.registration_confirmed"

	EventMatchCreated       EventType = "match.created"
	EventMatchReady         EventType = "match.ready"
	EventMatchCompleted     EventType = "match.completed"
	EventMatchForfeited     EventType = "match.forfeited"
	EventMatchForceResolved EventType = "match.force_resolved"

	EventResultSubmitted EventType = "result.submitted"
	EventDisputeOpened   EventType = "dispute.opened"
	EventDisputeResolved EventType = "dispute.resolved"

	EventBracketResetCreated EventType = "bracket.reset_created"
	EventStandingsUpdated    EventType = "standings.updated"
)

type Event struct {
	Type         EventType              `json:"type"`
	TournamentID int                    `json:"tournament_id"`
	MatchID      *uuid.UUID             `json:"match_id,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

func NewEvent(typ EventType, tournamentID int) Event {
	return Event{
		Type:         typ,
		TournamentID: tournamentID,
		Payload:      make(map[string]interface{}),
		OccurredAt:   time.Now(),
	}
}

// WithMatch attaches a match id to the event.
func (e Event) WithMatch(id uuid.UUID) Event {
	e.MatchID = &id
	return e
}

// With sets a payload field and returns the event for chaining.
func (e Event) With(key string, value interface{}) Event {
	e.Payload[key] = value
	return e
}
