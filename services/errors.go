package services

import (
	"errors"
	"fmt"
)

// Errors shared across services and the HTTP error mapping.
var (
	// Resource lookups
	ErrNotFound           = errors.New("requested resource not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrDisputeNotFound    = errors.New("dispute not found")

	// Validation and business rules
	ErrValidationFailed        = errors.New("validation failed")
	ErrTournamentNameRequired  = errors.New("tournament name is required")
	ErrTournamentDatesRequired = errors.New("tournament dates are required")
	ErrInvalidRegDate          = errors.New("registration close date must not be after start date")
	ErrInvalidDateRange        = errors.New("tournament end date must be after start date")
	ErrInvalidCapacity         = errors.New("tournament participant bounds are invalid")
	ErrInvalidHierarchy        = errors.New("tiebreaker hierarchy is invalid")
	ErrRegistrationNotOpen     = errors.New("tournament registration is not open")
	ErrTournamentFull          = errors.New("tournament registration is full")
	ErrNotEnoughEntrants       = errors.New("not enough confirmed entrants to start")
	ErrScoreDrawForbidden      = errors.New("elimination matches cannot end in a draw")
	ErrNotAParticipant         = errors.New("caller is not a participant of this match")
	ErrAlreadySubmitted        = errors.New("this side has already submitted a result")
	ErrNoSubmission            = errors.New("match has no pending result submission")
	ErrDisputeOpen             = errors.New("match already has an open dispute")

	// State machine violations. Both carry the violated edge in their
	// wrapped context; ErrMatchNotActable is the match-level refinement of
	// ErrInvalidTransition, so errors.Is matches either.
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrMatchNotActable   = fmt.Errorf("%w: match state does not allow this operation", ErrInvalidTransition)

	// A concurrent writer won the race for the same entity version.
	ErrConcurrentModification = errors.New("entity was modified concurrently")

	// The tiebreak hierarchy was exhausted without separating participants.
	// Unreachable when the hierarchy ends in the random terminator, kept as
	// a distinct failure for graphs configured before that rule.
	ErrIrreconcilableTie = errors.New("tiebreaker hierarchy could not separate participants")

	// A structural invariant of the competition graph does not hold.
	ErrGraphInvariantViolation = errors.New("competition graph invariant violated")

	// Freeze semantics
	ErrTournamentFrozen    = errors.New("tournament is frozen")
	ErrTournamentNotFrozen = errors.New("tournament is not frozen")

	// Authorization
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)
