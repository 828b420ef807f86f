package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/repositories"
	"github.com/Dosada05/competition-engine/tiebreak"
)

// StandingService keeps the persisted tables of table-based formats in step
// with the competition graph.
type StandingService interface {
	// Recompute rebuilds every standing row of the graph's tournament and
	// ranks them with the configured tiebreaker hierarchy.
	Recompute(ctx context.Context, graph *models.CompetitionGraph) error

	List(ctx context.Context, tournamentID int) ([]models.Standing, error)
	ListByGroup(ctx context.Context, tournamentID, groupID int) ([]models.Standing, error)
}

type standingService struct {
	repo   repositories.StandingRepository
	logger *slog.Logger
}

func NewStandingService(repo repositories.StandingRepository, logger *slog.Logger) StandingService {
	return &standingService{repo: repo, logger: logger}
}

func (s *standingService) Recompute(ctx context.Context, graph *models.CompetitionGraph) error {
	var standings []*models.Standing
	switch graph.Format {
	case models.FormatSwiss:
		standings = swissStandings(graph)
	case models.FormatRoundRobin:
		group := models.Group{ID: 0, Members: graph.SeedOrder}
		standings = rankGroup(graph, group)
	case models.FormatGroupThenBracket:
		for _, group := range graph.Groups {
			standings = append(standings, rankGroup(graph, group)...)
		}
	default:
		// Elimination formats have no table.
		return nil
	}

	for _, st := range standings {
		if err := s.repo.Upsert(ctx, nil, st); err != nil {
			return fmt.Errorf("failed to upsert standing for %s: %w", st.ParticipantID, err)
		}
	}
	if s.logger != nil {
		s.logger.Debug("standings recomputed",
			slog.Int("tournament_id", graph.TournamentID),
			slog.Int("rows", len(standings)))
	}
	return nil
}

func (s *standingService) List(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	return s.repo.ListByTournament(ctx, tournamentID)
}

func (s *standingService) ListByGroup(ctx context.Context, tournamentID, groupID int) ([]models.Standing, error) {
	return s.repo.ListByGroup(ctx, tournamentID, groupID)
}

// rankGroup builds one group's table and writes rank numbers onto it.
func rankGroup(graph *models.CompetitionGraph, group models.Group) []*models.Standing {
	standings := brackets.GroupStandings(graph, group)
	ordered := tiebreak.Resolve(standings, rankingHierarchy(graph), &tiebreak.Context{
		Results: brackets.GroupOutcomes(graph, group),
	})
	for i := range ordered {
		rank := i + 1
		ordered[i].Rank = &rank
	}
	return ordered
}

func rankingHierarchy(graph *models.CompetitionGraph) []string {
	if tiebreak.ValidateHierarchy(graph.TiebreakerHierarchy) == nil {
		return graph.TiebreakerHierarchy
	}
	if graph.Format == models.FormatSwiss {
		return []string{tiebreak.CriterionPoints, tiebreak.CriterionBuchholz, tiebreak.CriterionRandom}
	}
	return []string{tiebreak.CriterionPoints, tiebreak.CriterionHeadToHead, tiebreak.CriterionScoreDiff, tiebreak.CriterionRandom}
}

// swissStandings builds the Swiss table: a win or a bye scores 1 point, a
// draw half. Buchholz is the sum of each opponent's points.
func swissStandings(graph *models.CompetitionGraph) []*models.Standing {
	byRef := make(map[string]*models.Standing, len(graph.SeedOrder))
	opponents := make(map[string][]string)
	for _, ref := range graph.SeedOrder {
		byRef[ref] = models.NewStanding(graph.TournamentID, 0, ref)
	}

	for _, node := range graph.Nodes {
		if node.IsBye {
			if node.Slot1 != nil {
				if st := byRef[*node.Slot1]; st != nil {
					st.Played++
					st.Wins++
					st.Criteria[tiebreak.CriterionPoints]++
				}
			}
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || !m.State.Terminal() || m.Score == nil {
			continue
		}
		p1, p2 := byRef[derefString(m.Participant1)], byRef[derefString(m.Participant2)]
		if p1 == nil || p2 == nil {
			continue
		}
		opponents[p1.ParticipantID] = append(opponents[p1.ParticipantID], p2.ParticipantID)
		opponents[p2.ParticipantID] = append(opponents[p2.ParticipantID], p1.ParticipantID)
		p1.Played++
		p2.Played++
		p1.Criteria[tiebreak.CriterionScoreFor] += float64(m.Score.P1)
		p2.Criteria[tiebreak.CriterionScoreFor] += float64(m.Score.P2)
		p1.Criteria[tiebreak.CriterionScoreDiff] += float64(m.Score.P1 - m.Score.P2)
		p2.Criteria[tiebreak.CriterionScoreDiff] += float64(m.Score.P2 - m.Score.P1)
		switch {
		case m.Score.P1 > m.Score.P2:
			p1.Wins++
			p2.Losses++
			p1.Criteria[tiebreak.CriterionPoints]++
		case m.Score.P2 > m.Score.P1:
			p2.Wins++
			p1.Losses++
			p2.Criteria[tiebreak.CriterionPoints]++
		default:
			p1.Draws++
			p2.Draws++
			p1.Criteria[tiebreak.CriterionPoints] += 0.5
			p2.Criteria[tiebreak.CriterionPoints] += 0.5
		}
	}

	standings := make([]*models.Standing, 0, len(graph.SeedOrder))
	for _, ref := range graph.SeedOrder {
		st := byRef[ref]
		st.Criteria[tiebreak.CriterionWins] = float64(st.Wins)
		for _, opp := range opponents[ref] {
			st.Criteria[tiebreak.CriterionBuchholz] += byRef[opp].Criterion(tiebreak.CriterionPoints)
		}
		standings = append(standings, st)
	}

	ordered := tiebreak.Resolve(standings, rankingHierarchy(graph), &tiebreak.Context{})
	for i := range ordered {
		rank := i + 1
		ordered[i].Rank = &rank
	}
	return ordered
}
