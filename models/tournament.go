package models

import "time"

// TournamentStatus values mirror the lifecycle ENUM in the database.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusPendingApproval    TournamentStatus = "pending_approval"
	StatusPublished          TournamentStatus = "published"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusLive               TournamentStatus = "live"
	StatusFrozen             TournamentStatus = "frozen"
	StatusCompleted          TournamentStatus = "completed"
	StatusArchived           TournamentStatus = "archived"
	StatusCancelled          TournamentStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s TournamentStatus) Terminal() bool {
	return s == StatusArchived || s == StatusCancelled
}

type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elim"
	FormatDoubleElimination TournamentFormat = "double_elim"
	FormatRoundRobin        TournamentFormat = "round_robin"
	FormatSwiss             TournamentFormat = "swiss"
	FormatGroupThenBracket  TournamentFormat = "group_then_bracket"
)

type SeedingMethod string

const (
	SeedingRegistration SeedingMethod = "registration"
	SeedingRandom       SeedingMethod = "random"
	SeedingRanked       SeedingMethod = "ranked"
	SeedingManual       SeedingMethod = "manual"
)

// Entrant is a confirmed tournament participant. Ref is an opaque id owned
// by the external roster provider; Rating feeds ranked seeding and Seed is
// the explicit position when SeedingManual is used.
type Entrant struct {
	Ref    string `json:"ref" db:"participant_ref"`
	Rating int    `json:"rating,omitempty" db:"rating"`
	Seed   int    `json:"seed,omitempty" db:"seed"`
}

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	OrganizerID     int              `json:"organizer_id" db:"organizer_id"`
	Status          TournamentStatus `json:"status" db:"status"`
	Format          TournamentFormat `json:"format" db:"format"`
	Seeding         SeedingMethod    `json:"seeding" db:"seeding"`
	MinParticipants int              `json:"min_participants" db:"min_participants"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`

	// Format-specific knobs. SwissRounds caps the number of Swiss rounds,
	// GroupCount and AdvancementCount drive the group-then-bracket format.
	SwissRounds      int `json:"swiss_rounds,omitempty" db:"swiss_rounds"`
	GroupCount       int `json:"group_count,omitempty" db:"group_count"`
	AdvancementCount int `json:"advancement_count,omitempty" db:"advancement_count"`

	// Ordered criterion tags consumed by the tiebreak resolver. Validated
	// once at configuration time; the last tag must be the random terminator.
	TiebreakerHierarchy []string `json:"tiebreaker_hierarchy" db:"-"`

	FrozenAt            *time.Time    `json:"frozen_at,omitempty" db:"frozen_at"`
	FreezeDurationAccum time.Duration `json:"freeze_duration_accum" db:"freeze_duration_accum"`

	RegDate   time.Time `json:"reg_date" db:"reg_date"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Entrants []Entrant `json:"entrants,omitempty" db:"-"`

	// Owned exclusively by this tournament, built once on entering live.
	Graph *CompetitionGraph `json:"graph,omitempty" db:"-"`
}

// Frozen reports whether the killswitch is currently engaged.
func (t *Tournament) Frozen() bool {
	return t.Status == StatusFrozen
}
