package brackets

import (
	"context"
	"fmt"
	"testing"

	"github.com/Dosada05/competition-engine/models"
	"github.com/stretchr/testify/require"
)

func testEntrants(n int) []models.Entrant {
	entrants := make([]models.Entrant, n)
	for i := range entrants {
		entrants[i] = models.Entrant{Ref: fmt.Sprintf("p%d", i+1), Rating: 2000 - i*10, Seed: i + 1}
	}
	return entrants
}

func testTournament(format models.TournamentFormat) *models.Tournament {
	return &models.Tournament{
		ID:      42,
		Status:  models.StatusLive,
		Format:  format,
		Seeding: models.SeedingRegistration,
	}
}

func generate(t *testing.T, format models.TournamentFormat, n int) (FormatEngine, *models.CompetitionGraph) {
	t.Helper()
	engine, err := EngineFor(format)
	require.NoError(t, err)
	graph, err := engine.Generate(context.Background(), GenerateParams{
		Tournament: testTournament(format),
		Entrants:   testEntrants(n),
	})
	require.NoError(t, err)
	return engine, graph
}

// finish records a decisive score on the given side, marks the match
// completed and feeds it to the engine.
func finish(t *testing.T, engine FormatEngine, graph *models.CompetitionGraph, m *models.Match, winner models.MatchSide) []*models.Match {
	t.Helper()
	switch winner {
	case models.Side1:
		m.ApplyScore(models.Score{P1: 1, P2: 0})
	case models.Side2:
		m.ApplyScore(models.Score{P1: 0, P2: 1})
	default:
		m.ApplyScore(models.Score{P1: 1, P2: 1})
	}
	m.State = models.MatchCompleted
	created, err := engine.Advance(graph, m)
	require.NoError(t, err)
	return created
}

// cancel voids the match with no result recorded and feeds it to the engine.
func cancel(t *testing.T, engine FormatEngine, graph *models.CompetitionGraph, m *models.Match) []*models.Match {
	t.Helper()
	m.Score, m.WinnerID, m.LoserID = nil, nil, nil
	m.State = models.MatchCancelled
	created, err := engine.Advance(graph, m)
	require.NoError(t, err)
	return created
}

// playOut drives the graph to completion, deciding each pending match with
// the given policy. The iteration bound guards against an engine that keeps
// spawning matches.
func playOut(t *testing.T, engine FormatEngine, graph *models.CompetitionGraph, decide func(*models.Match) models.MatchSide) {
	t.Helper()
	for iter := 0; iter < 10_000; iter++ {
		advanced := false
		for _, m := range graph.Matches() {
			if m.State.Terminal() {
				continue
			}
			finish(t, engine, graph, m, decide(m))
			advanced = true
			break
		}
		if !advanced {
			return
		}
	}
	t.Fatal("graph did not converge")
}

func side1Wins(*models.Match) models.MatchSide { return models.Side1 }

func pendingMatches(graph *models.CompetitionGraph) []*models.Match {
	pending := make([]*models.Match, 0)
	for _, m := range graph.Matches() {
		if !m.State.Terminal() {
			pending = append(pending, m)
		}
	}
	return pending
}
