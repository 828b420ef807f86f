package brackets

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/Dosada05/competition-engine/models"
)

type SingleEliminationEngine struct{}

func NewSingleEliminationEngine() FormatEngine {
	return &SingleEliminationEngine{}
}

func (e *SingleEliminationEngine) Name() string { return "SingleElimination" }

func (e *SingleEliminationEngine) Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error) {
	if len(params.Entrants) < 2 {
		return nil, fmt.Errorf("%w: single elimination needs at least 2, got %d", ErrNotEnoughParticipants, len(params.Entrants))
	}

	seeded := SeedEntrants(params.Entrants, params.Tournament.Seeding, params.Rand)
	refs := make([]string, len(seeded))
	for i, ent := range seeded {
		refs[i] = ent.Ref
	}

	graph := models.NewCompetitionGraph(params.Tournament.ID, models.FormatSingleElimination)
	if err := buildEliminationTree(graph, refs); err != nil {
		return nil, err
	}
	materializeReady(graph)
	return graph, nil
}

// buildEliminationTree lays a balanced binary tree over the graph's arena
// sized to the next power of two above len(refs). Seeds beyond the field are
// byes, which land against the top seeds by construction of the standard
// seed pairing. Shared with the knockout phase of the group format.
func buildEliminationTree(graph *models.CompetitionGraph, refs []string) error {
	n := len(refs)
	size := nextPowerOfTwo(n)
	rounds := bits.TrailingZeros(uint(size))

	graph.SeedOrder = append([]string(nil), refs...)
	baseRound := graph.Rounds

	// One row of nodes per round, linked parent-child by arena index.
	rows := make([][]int, rounds)
	for r := 1; r <= rounds; r++ {
		count := size >> uint(r)
		rows[r-1] = make([]int, count)
		for i := 0; i < count; i++ {
			node := &models.Node{
				Side:         models.SideWinners,
				Round:        baseRound + r,
				OrderInRound: i + 1,
				Feeder1:      models.NoNode,
				Feeder2:      models.NoNode,
				AdvanceTo:    models.NoNode,
				LoserTo:      models.NoNode,
				Status:       models.NodeEmpty,
			}
			if r == rounds {
				node.Side = models.SideFinals
			}
			rows[r-1][i] = graph.AppendNode(node)
		}
	}
	for r := 1; r < rounds; r++ {
		for i, idx := range rows[r-1] {
			parentIdx := rows[r][i/2]
			node := graph.Node(idx)
			node.AdvanceTo = parentIdx
			node.AdvanceSlot = i%2 + 1

			parent := graph.Node(parentIdx)
			if node.AdvanceSlot == 1 {
				parent.Feeder1 = idx
			} else {
				if parent.Feeder2 != models.NoNode {
					return fmt.Errorf("%w: node %d would receive a third feeder", ErrGraphInvariant, parentIdx)
				}
				parent.Feeder2 = idx
			}
		}
	}

	// Fill round 1 by seed pairing and resolve byes immediately.
	pairs := seedPairs(size)
	for i, pair := range pairs {
		node := graph.Node(rows[0][i])
		if pair[0] < n {
			node.FillSlot(1, refs[pair[0]])
		}
		if pair[1] < n {
			node.FillSlot(2, refs[pair[1]])
		}
		if node.Slot1 == nil && node.Slot2 == nil {
			return fmt.Errorf("%w: round 1 pairing produced an empty node", ErrGraphInvariant)
		}
		if node.Slot1 == nil || node.Slot2 == nil {
			resolveBye(graph, node)
		}
	}
	graph.Rounds = baseRound + rounds
	return nil
}

// resolveBye marks the node as a bye and advances its lone participant. No
// match is ever created for a bye node.
func resolveBye(graph *models.CompetitionGraph, node *models.Node) {
	ref := node.Slot1
	if ref == nil {
		ref = node.Slot2
		node.Slot1 = ref
		node.Slot2 = nil
	}
	node.IsBye = true
	node.Status = models.NodePopulated
	if node.AdvanceTo != models.NoNode && ref != nil {
		graph.Node(node.AdvanceTo).FillSlot(node.AdvanceSlot, *ref)
	}
}

// seedPairs returns the canonical first-round seed pairing for a bracket of
// the given power-of-two size: seed 0 meets the worst seed, and the top two
// seeds cannot meet before the final.
func seedPairs(size int) [][2]int {
	order := []int{0}
	for len(order) < size {
		doubled := len(order) * 2
		next := make([]int, 0, doubled)
		for _, seed := range order {
			next = append(next, seed, doubled-1-seed)
		}
		order = next
	}
	pairs := make([][2]int, 0, size/2)
	for i := 0; i < len(order); i += 2 {
		pairs = append(pairs, [2]int{order[i], order[i+1]})
	}
	return pairs
}

func (e *SingleEliminationEngine) Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error) {
	node := graph.Node(completed.NodeIndex)
	if node == nil {
		return nil, fmt.Errorf("%w: match %s references node %d outside the arena", ErrGraphInvariant, completed.ID, completed.NodeIndex)
	}
	if !completed.State.Terminal() {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotTerminal, completed.ID, completed.State)
	}
	if node.AdvanceTo == models.NoNode {
		return nil, nil
	}
	// A voided match delivers nobody; its parent slot resolves as a bye so
	// the sibling's winner advances unopposed.
	if completed.WinnerID == nil {
		return voidFeed(graph, node.AdvanceTo, node.AdvanceSlot), nil
	}
	return routeToNode(graph, node.AdvanceTo, node.AdvanceSlot, *completed.WinnerID), nil
}

func (e *SingleEliminationEngine) IsComplete(graph *models.CompetitionGraph) bool {
	return graph.AllMatchesTerminal()
}
