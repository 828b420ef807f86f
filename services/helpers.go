package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/Dosada05/competition-engine/tiebreak"
)

// statusTransitions is the lifecycle whitelist. Any edge not listed here is
// rejected with ErrInvalidTransition before side effects run.
var statusTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusDraft:              {models.StatusPendingApproval, models.StatusCancelled},
	models.StatusPendingApproval:    {models.StatusPublished, models.StatusDraft, models.StatusCancelled},
	models.StatusPublished:          {models.StatusRegistrationOpen, models.StatusCancelled},
	models.StatusRegistrationOpen:   {models.StatusRegistrationClosed, models.StatusCancelled},
	models.StatusRegistrationClosed: {models.StatusLive, models.StatusRegistrationOpen, models.StatusCancelled},
	models.StatusLive:               {models.StatusCompleted, models.StatusFrozen, models.StatusCancelled},
	models.StatusFrozen:             {models.StatusLive, models.StatusCancelled},
	models.StatusCompleted:          {models.StatusArchived},
	models.StatusArchived:           {},
	models.StatusCancelled:          {},
}

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	for _, allowed := range statusTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}

func invalidTransition(current, next models.TournamentStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
}

func validateTournamentConfig(t *models.Tournament) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrTournamentNameRequired
	}
	if t.RegDate.IsZero() || t.StartDate.IsZero() || t.EndDate.IsZero() {
		return ErrTournamentDatesRequired
	}
	if t.RegDate.After(t.StartDate) {
		return fmt.Errorf("%w: registration closes %s, start is %s",
			ErrInvalidRegDate, t.RegDate.Format(time.RFC3339), t.StartDate.Format(time.RFC3339))
	}
	if !t.StartDate.Before(t.EndDate) {
		return fmt.Errorf("%w: start %s, end %s",
			ErrInvalidDateRange, t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339))
	}
	if t.MaxParticipants < 2 || (t.MinParticipants > 0 && t.MinParticipants > t.MaxParticipants) {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidCapacity, t.MinParticipants, t.MaxParticipants)
	}
	if _, err := brackets.EngineFor(t.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if len(t.TiebreakerHierarchy) > 0 || formatUsesHierarchy(t.Format) {
		if err := tiebreak.ValidateHierarchy(t.TiebreakerHierarchy); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHierarchy, err)
		}
	}
	return nil
}

// formatUsesHierarchy reports whether the format ranks participants by table
// position, which requires a configured tiebreak hierarchy.
func formatUsesHierarchy(format models.TournamentFormat) bool {
	switch format {
	case models.FormatRoundRobin, models.FormatSwiss, models.FormatGroupThenBracket:
		return true
	}
	return false
}

// mapTournamentRepoError translates repository sentinels into service ones.
func mapTournamentRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentStatusConflict):
		return fmt.Errorf("%w: tournament status", ErrConcurrentModification)
	default:
		return err
	}
}

func mapMatchRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case errors.Is(err, repositories.ErrMatchStateConflict):
		return fmt.Errorf("%w: match state", ErrConcurrentModification)
	default:
		return err
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
