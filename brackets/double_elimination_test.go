package brackets

import (
	"fmt"
	"testing"

	"github.com/Dosada05/competition-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowerBracketRuns makes the losers bracket champion win the grand final,
// forcing the bracket reset; everything else goes to side 1.
func lowerBracketRuns(graph *models.CompetitionGraph) func(*models.Match) models.MatchSide {
	return func(m *models.Match) models.MatchSide {
		node := graph.Node(m.NodeIndex)
		if node != nil && node.Side == models.SideFinals && !node.IsBracketReset {
			return models.Side2
		}
		return models.Side1
	}
}

func TestDoubleEliminationWinnersChampionEndsWithoutReset(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 4)

	playOut(t, engine, graph, side1Wins)

	assert.True(t, engine.IsComplete(graph))
	// 2n-2 matches when the winners bracket champion takes the grand final.
	assert.Len(t, graph.Matches(), 6)
	for _, node := range graph.Nodes {
		assert.False(t, node.IsBracketReset, "no reset node when the undefeated side wins")
	}
}

func TestDoubleEliminationBracketReset(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 4)

	playOut(t, engine, graph, lowerBracketRuns(graph))

	assert.True(t, engine.IsComplete(graph))
	// 2n-1 matches when the grand final is reset and replayed.
	require.Len(t, graph.Matches(), 7)

	var reset *models.Match
	for _, m := range graph.Matches() {
		if m.IsBracketReset {
			require.Nil(t, reset, "at most one reset match")
			reset = m
		}
	}
	require.NotNil(t, reset)

	// The reset repeats the grand final's participants.
	gf := graph.MatchAtNode(grandFinalNode(graph))
	require.NotNil(t, gf)
	assert.Equal(t, *gf.Participant1, *reset.Participant1)
	assert.Equal(t, *gf.Participant2, *reset.Participant2)
}

func TestDoubleEliminationResetIsIdempotent(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 4)

	// Drive to the grand final, losers champion winning it.
	playOut(t, engine, graph, lowerBracketRuns(graph))

	gf := graph.MatchAtNode(grandFinalNode(graph))
	require.NotNil(t, gf)
	require.True(t, gf.State.Terminal())

	// Replaying the grand final completion must not spawn a second reset.
	created, err := engine.Advance(graph, gf)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, graph.Matches(), 7)
}

func TestDoubleEliminationEveryoneGetsTwoLives(t *testing.T) {
	for _, n := range []int{2, 3, 4, 6, 8, 11} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			engine, graph := generate(t, models.FormatDoubleElimination, n)
			playOut(t, engine, graph, side1Wins)
			require.True(t, engine.IsComplete(graph))

			losses := make(map[string]int)
			var champion string
			for _, m := range graph.Matches() {
				require.NotNil(t, m.WinnerID)
				require.NotNil(t, m.LoserID)
				losses[*m.LoserID]++
				champion = *m.WinnerID
			}
			for ref, count := range losses {
				assert.LessOrEqual(t, count, 2, "%s lost %d times", ref, count)
			}
			assert.LessOrEqual(t, losses[champion], 1, "champion survives with at most one loss")
			assert.Len(t, graph.Matches(), 2*n-2)
		})
	}
}

func TestDoubleEliminationByeFieldCompletes(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 6)

	playOut(t, engine, graph, lowerBracketRuns(graph))

	assert.True(t, engine.IsComplete(graph))
	assert.Len(t, graph.Matches(), 2*6-1)
}

func TestDoubleEliminationCancelledMatchVoidsBothFeeds(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 4)

	matches := pendingMatches(graph)
	require.Len(t, matches, 2)

	// Voiding one opening match silences both its winner and loser feeds;
	// the winners final and the first losers round resolve as walkovers.
	created := cancel(t, engine, graph, matches[0])
	assert.Empty(t, created)

	created = finish(t, engine, graph, matches[1], models.Side1)
	require.Len(t, created, 1, "winner and loser of the surviving match meet in the grand final")
	gf := created[0]
	assert.Equal(t, *matches[1].WinnerID, *gf.Participant1)
	assert.Equal(t, *matches[1].LoserID, *gf.Participant2)

	finish(t, engine, graph, gf, models.Side1)
	assert.True(t, engine.IsComplete(graph))
	assert.Len(t, graph.Matches(), 3)
}

func TestDoubleEliminationCancellationIsIdempotent(t *testing.T) {
	engine, graph := generate(t, models.FormatDoubleElimination, 4)

	matches := pendingMatches(graph)
	require.Len(t, matches, 2)

	cancel(t, engine, graph, matches[0])
	// Replaying the cancelled advancement must not disturb the walkover
	// state left behind by the first pass.
	again := cancel(t, engine, graph, matches[0])
	assert.Empty(t, again)

	created := finish(t, engine, graph, matches[1], models.Side1)
	require.Len(t, created, 1)
	finish(t, engine, graph, created[0], models.Side1)
	assert.True(t, engine.IsComplete(graph))
}

// grandFinalNode returns the first finals node, the original grand final as
// opposed to its reset.
func grandFinalNode(graph *models.CompetitionGraph) int {
	for _, node := range graph.Nodes {
		if node.Side == models.SideFinals && !node.IsBracketReset {
			return node.Index
		}
	}
	return models.NoNode
}
