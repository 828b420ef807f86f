package brackets

import (
	"context"
	"fmt"

	"github.com/Dosada05/competition-engine/models"
)

type RoundRobinEngine struct{}

func NewRoundRobinEngine() FormatEngine {
	return &RoundRobinEngine{}
}

func (e *RoundRobinEngine) Name() string { return "RoundRobin" }

// Generate creates one match per unordered pair of participants. There is no
// advancement; the format completes when every match is terminal and the
// final order comes from the standings table.
func (e *RoundRobinEngine) Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error) {
	if len(params.Entrants) < 2 {
		return nil, fmt.Errorf("%w: round robin needs at least 2, got %d", ErrNotEnoughParticipants, len(params.Entrants))
	}

	seeded := SeedEntrants(params.Entrants, params.Tournament.Seeding, params.Rand)
	refs := make([]string, len(seeded))
	for i, ent := range seeded {
		refs[i] = ent.Ref
	}

	graph := models.NewCompetitionGraph(params.Tournament.ID, models.FormatRoundRobin)
	graph.SeedOrder = append([]string(nil), refs...)
	buildRoundRobin(graph, refs, 0)
	graph.Rounds = roundRobinRounds(len(refs))
	materializeReady(graph)
	return graph, nil
}

// buildRoundRobin schedules all pairs with the circle method so each
// participant plays at most once per round. Shared with the group stage.
func buildRoundRobin(graph *models.CompetitionGraph, refs []string, groupID int) {
	// Odd field: a rotating phantom gives one participant a rest per round.
	rotation := append([]string(nil), refs...)
	if len(rotation)%2 == 1 {
		rotation = append(rotation, "")
	}
	half := len(rotation) / 2

	for round := 1; round < len(rotation); round++ {
		order := 1
		for i := 0; i < half; i++ {
			p1, p2 := rotation[i], rotation[len(rotation)-1-i]
			if p1 == "" || p2 == "" {
				continue
			}
			node := &models.Node{
				Side:         models.SideGroups,
				Round:        round,
				OrderInRound: order,
				GroupID:      groupID,
				Feeder1:      models.NoNode,
				Feeder2:      models.NoNode,
				AdvanceTo:    models.NoNode,
				LoserTo:      models.NoNode,
				Status:       models.NodeEmpty,
			}
			node.FillSlot(1, p1)
			node.FillSlot(2, p2)
			graph.AppendNode(node)
			order++
		}
		// Rotate all but the first position.
		last := rotation[len(rotation)-1]
		copy(rotation[2:], rotation[1:len(rotation)-1])
		rotation[1] = last
	}
}

func roundRobinRounds(n int) int {
	if n%2 == 0 {
		return n - 1
	}
	return n
}

// Advance is a no-op: round robin has no winner progression.
func (e *RoundRobinEngine) Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error) {
	if !completed.State.Terminal() {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotTerminal, completed.ID, completed.State)
	}
	return nil, nil
}

func (e *RoundRobinEngine) IsComplete(graph *models.CompetitionGraph) bool {
	return graph.AllMatchesTerminal()
}
