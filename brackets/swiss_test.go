package brackets

import (
	"context"
	"testing"

	"github.com/Dosada05/competition-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateSwiss(t *testing.T, n, rounds int) (FormatEngine, *models.CompetitionGraph) {
	t.Helper()
	engine, err := EngineFor(models.FormatSwiss)
	require.NoError(t, err)
	tournament := testTournament(models.FormatSwiss)
	tournament.SwissRounds = rounds
	graph, err := engine.Generate(context.Background(), GenerateParams{
		Tournament: tournament,
		Entrants:   testEntrants(n),
	})
	require.NoError(t, err)
	return engine, graph
}

func TestSwissRoundOnePairsTopHalfAgainstBottomHalf(t *testing.T) {
	_, graph := generateSwiss(t, 8, 0)

	require.Equal(t, 1, graph.Rounds)
	matches := pendingMatches(graph)
	require.Len(t, matches, 4)

	want := map[string]string{"p1": "p5", "p2": "p6", "p3": "p7", "p4": "p8"}
	for _, m := range matches {
		require.NotNil(t, m.Participant1)
		require.NotNil(t, m.Participant2)
		assert.Equal(t, want[*m.Participant1], *m.Participant2)
	}
}

func TestSwissDefaultRoundCapSeparatesUndefeatedWinner(t *testing.T) {
	// ceil(log2(n)) rounds: 3 for 8 players, 4 for 9.
	_, graph := generateSwiss(t, 8, 0)
	assert.Equal(t, 3, graph.RoundCap)

	_, graph = generateSwiss(t, 9, 0)
	assert.Equal(t, 4, graph.RoundCap)
}

func TestSwissPlaysConfiguredRoundsWithoutRematches(t *testing.T) {
	engine, graph := generateSwiss(t, 8, 3)

	playOut(t, engine, graph, side1Wins)

	assert.True(t, engine.IsComplete(graph))
	assert.Equal(t, 3, graph.Rounds)
	assert.Len(t, graph.Matches(), 12)

	seen := make(map[[2]string]int)
	for _, m := range graph.Matches() {
		seen[pairKey(*m.Participant1, *m.Participant2)]++
	}
	for pair, count := range seen {
		assert.Equal(t, 1, count, "%v met %d times", pair, count)
	}
}

func TestSwissOddFieldRotatesTheBye(t *testing.T) {
	engine, graph := generateSwiss(t, 7, 3)

	playOut(t, engine, graph, side1Wins)

	require.True(t, engine.IsComplete(graph))
	byes := make(map[string]int)
	for _, node := range graph.Nodes {
		if node.IsBye {
			require.NotNil(t, node.Slot1)
			byes[*node.Slot1]++
		}
	}
	require.Len(t, byes, 3, "one bye per round")
	for ref, count := range byes {
		assert.Equal(t, 1, count, "%s rested %d times", ref, count)
	}
}

func TestSwissStopsEarlyWhenLeaderIsUncatchable(t *testing.T) {
	engine, graph := generateSwiss(t, 2, 3)

	playOut(t, engine, graph, side1Wins)

	// After two wins the leader is two points clear with one round left.
	assert.True(t, engine.IsComplete(graph))
	assert.Equal(t, 2, graph.Rounds)
	assert.Len(t, graph.Matches(), 2)
}

func TestSwissDoesNotPairNextRoundUntilCurrentResolves(t *testing.T) {
	engine, graph := generateSwiss(t, 8, 3)

	matches := pendingMatches(graph)
	require.Len(t, matches, 4)

	for i, m := range matches[:3] {
		created := finish(t, engine, graph, m, models.Side1)
		assert.Empty(t, created, "round 2 must wait for match %d", i+1)
	}
	created := finish(t, engine, graph, matches[3], models.Side1)
	assert.Len(t, created, 4, "last result of the round triggers the next pairing")
	assert.Equal(t, 2, graph.Rounds)
}

func TestSwissPairingKeepsRematchesToTheMinimum(t *testing.T) {
	// p1 has faced the entire field, so one rematch is unavoidable; p3 and
	// p4 have also met, but a fresh pairing exists for them and must win
	// over the nearest-first rematch.
	ordered := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	played := map[[2]string]bool{
		pairKey("p1", "p2"): true,
		pairKey("p1", "p3"): true,
		pairKey("p1", "p4"): true,
		pairKey("p1", "p5"): true,
		pairKey("p1", "p6"): true,
		pairKey("p3", "p4"): true,
	}

	require.Nil(t, matchByRecord(ordered, played, 0))

	pairings := matchByRecord(ordered, played, 1)
	require.Len(t, pairings, 3)
	rematches := 0
	for _, pair := range pairings {
		if played[pairKey(pair[0], pair[1])] {
			rematches++
		}
	}
	assert.Equal(t, 1, rematches, "only the forced rematch is played again")
}

func TestSwissDrawsScoreHalfAPoint(t *testing.T) {
	engine, graph := generateSwiss(t, 4, 2)
	swiss := engine.(*SwissEngine)

	matches := pendingMatches(graph)
	require.Len(t, matches, 2)
	finish(t, engine, graph, matches[0], models.SideNone)
	finish(t, engine, graph, matches[1], models.Side1)

	scores := swiss.scores(graph)
	assert.InDelta(t, 0.5, scores[*matches[0].Participant1], 1e-9)
	assert.InDelta(t, 0.5, scores[*matches[0].Participant2], 1e-9)
	assert.InDelta(t, 1.0, scores[*matches[1].Participant1], 1e-9)
}
