package brackets

import (
	"context"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Dosada05/competition-engine/models"
)

type SwissEngine struct{}

func NewSwissEngine() FormatEngine {
	return &SwissEngine{}
}

func (e *SwissEngine) Name() string { return "Swiss" }

// Generate seeds round 1 the classic way: top half against bottom half in
// seed order. Later rounds are paired on demand in Advance once the current
// round has fully resolved.
func (e *SwissEngine) Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error) {
	if len(params.Entrants) < 2 {
		return nil, fmt.Errorf("%w: swiss needs at least 2, got %d", ErrNotEnoughParticipants, len(params.Entrants))
	}

	seeded := SeedEntrants(params.Entrants, params.Tournament.Seeding, params.Rand)
	refs := make([]string, len(seeded))
	for i, ent := range seeded {
		refs[i] = ent.Ref
	}

	graph := models.NewCompetitionGraph(params.Tournament.ID, models.FormatSwiss)
	graph.SeedOrder = append([]string(nil), refs...)
	graph.RoundCap = params.Tournament.SwissRounds
	if graph.RoundCap <= 0 {
		// Enough rounds to separate an undefeated winner.
		graph.RoundCap = bits.Len(uint(len(refs) - 1))
	}

	pairings, byeRef := e.pairRound1(refs)
	e.appendRound(graph, 1, pairings, byeRef)
	graph.Rounds = 1
	materializeReady(graph)
	return graph, nil
}

func (e *SwissEngine) pairRound1(refs []string) ([][2]string, string) {
	working := refs
	byeRef := ""
	if len(working)%2 == 1 {
		// Lowest seed rests in round 1.
		byeRef = working[len(working)-1]
		working = working[:len(working)-1]
	}
	half := len(working) / 2
	pairings := make([][2]string, 0, half)
	for i := 0; i < half; i++ {
		pairings = append(pairings, [2]string{working[i], working[i+half]})
	}
	return pairings, byeRef
}

func (e *SwissEngine) appendRound(graph *models.CompetitionGraph, round int, pairings [][2]string, byeRef string) {
	order := 1
	for _, pair := range pairings {
		node := &models.Node{
			Side:         models.SideWinners,
			Round:        round,
			OrderInRound: order,
			Feeder1:      models.NoNode,
			Feeder2:      models.NoNode,
			AdvanceTo:    models.NoNode,
			LoserTo:      models.NoNode,
			Status:       models.NodeEmpty,
		}
		node.FillSlot(1, pair[0])
		node.FillSlot(2, pair[1])
		graph.AppendNode(node)
		order++
	}
	if byeRef != "" {
		bye := &models.Node{
			Side:         models.SideWinners,
			Round:        round,
			OrderInRound: order,
			Feeder1:      models.NoNode,
			Feeder2:      models.NoNode,
			AdvanceTo:    models.NoNode,
			LoserTo:      models.NoNode,
			Status:       models.NodePopulated,
			IsBye:        true,
		}
		bye.FillSlot(1, byeRef)
		graph.AppendNode(bye)
	}
}

// Advance pairs the next round once every match of the current round is
// terminal and the stop conditions do not hold.
func (e *SwissEngine) Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error) {
	if !completed.State.Terminal() {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotTerminal, completed.ID, completed.State)
	}
	if !e.roundResolved(graph, graph.Rounds) || e.stopConditionMet(graph) {
		return nil, nil
	}

	pairings, byeRef := e.pairNextRound(graph)
	round := graph.Rounds + 1
	before := len(graph.Nodes)
	e.appendRound(graph, round, pairings, byeRef)
	graph.Rounds = round

	created := make([]*models.Match, 0, len(pairings))
	for _, node := range graph.Nodes[before:] {
		if node.IsBye || !node.Ready() || !node.Claim() {
			continue
		}
		created = append(created, newMatchForNode(graph, node))
	}
	return created, nil
}

func (e *SwissEngine) roundResolved(graph *models.CompetitionGraph, round int) bool {
	for _, node := range graph.Nodes {
		if node.Round != round || node.IsBye {
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || !m.State.Terminal() {
			return false
		}
	}
	return true
}

// stopConditionMet: the configured round count is reached, or the leader can
// no longer be caught in the rounds that remain.
func (e *SwissEngine) stopConditionMet(graph *models.CompetitionGraph) bool {
	if graph.Rounds >= graph.RoundCap {
		return true
	}
	scores := e.scores(graph)
	if len(scores) < 2 {
		return true
	}
	ordered := make([]float64, 0, len(scores))
	for _, s := range scores {
		ordered = append(ordered, s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ordered)))
	remaining := float64(graph.RoundCap - graph.Rounds)
	return ordered[0] > ordered[1]+remaining
}

// scores returns each participant's Swiss score: 1 per win or bye, 0.5 per
// draw.
func (e *SwissEngine) scores(graph *models.CompetitionGraph) map[string]float64 {
	scores := make(map[string]float64, len(graph.SeedOrder))
	for _, ref := range graph.SeedOrder {
		scores[ref] = 0
	}
	for _, node := range graph.Nodes {
		if node.IsBye {
			if node.Slot1 != nil {
				scores[*node.Slot1]++
			}
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || !m.State.Terminal() {
			continue
		}
		switch {
		case m.WinnerID != nil:
			scores[*m.WinnerID]++
		case m.Score != nil && m.Score.Draw():
			if m.Participant1 != nil {
				scores[*m.Participant1] += 0.5
			}
			if m.Participant2 != nil {
				scores[*m.Participant2] += 0.5
			}
		}
	}
	return scores
}

func (e *SwissEngine) played(graph *models.CompetitionGraph) map[[2]string]bool {
	played := make(map[[2]string]bool)
	for _, node := range graph.Nodes {
		if node.IsBye || node.Slot1 == nil || node.Slot2 == nil {
			continue
		}
		played[pairKey(*node.Slot1, *node.Slot2)] = true
	}
	return played
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// pairNextRound orders participants by score (seed order within the same
// score), hands the bye to the lowest-ranked participant who has not had
// one, and pairs the rest closest-record-first. Pairing backtracks to avoid
// rematches; when no rematch-free matching exists the rematch budget grows
// one pair at a time, so a single stuck pairing never licenses rematches
// across the whole field.
func (e *SwissEngine) pairNextRound(graph *models.CompetitionGraph) ([][2]string, string) {
	scores := e.scores(graph)
	played := e.played(graph)

	ordered := append([]string(nil), graph.SeedOrder...)
	seedPos := make(map[string]int, len(ordered))
	for i, ref := range ordered {
		seedPos[ref] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if scores[ordered[i]] != scores[ordered[j]] {
			return scores[ordered[i]] > scores[ordered[j]]
		}
		return seedPos[ordered[i]] < seedPos[ordered[j]]
	})

	byeRef := ""
	if len(ordered)%2 == 1 {
		byes := e.byeCounts(graph)
		for i := len(ordered) - 1; i >= 0; i-- {
			if byes[ordered[i]] == 0 {
				byeRef = ordered[i]
				ordered = append(ordered[:i], ordered[i+1:]...)
				break
			}
		}
		if byeRef == "" {
			byeRef = ordered[len(ordered)-1]
			ordered = ordered[:len(ordered)-1]
		}
	}

	var pairings [][2]string
	for budget := 0; pairings == nil && budget <= len(ordered)/2; budget++ {
		pairings = matchByRecord(ordered, played, budget)
	}
	return pairings, byeRef
}

func (e *SwissEngine) byeCounts(graph *models.CompetitionGraph) map[string]int {
	counts := make(map[string]int)
	for _, node := range graph.Nodes {
		if node.IsBye && node.Slot1 != nil {
			counts[*node.Slot1]++
		}
	}
	return counts
}

// matchByRecord pairs the ordered list by backtracking: the first unpaired
// participant tries partners nearest in the order first. Each rematch spends
// one unit of budget; a nil result means no matching fits the budget.
func matchByRecord(ordered []string, played map[[2]string]bool, budget int) [][2]string {
	if len(ordered) == 0 {
		return [][2]string{}
	}
	first := ordered[0]
	for i := 1; i < len(ordered); i++ {
		partner := ordered[i]
		remaining := budget
		if played[pairKey(first, partner)] {
			if remaining == 0 {
				continue
			}
			remaining--
		}
		rest := make([]string, 0, len(ordered)-2)
		rest = append(rest, ordered[1:i]...)
		rest = append(rest, ordered[i+1:]...)
		if tail := matchByRecord(rest, played, remaining); tail != nil {
			return append([][2]string{{first, partner}}, tail...)
		}
	}
	return nil
}

func (e *SwissEngine) IsComplete(graph *models.CompetitionGraph) bool {
	return graph.AllMatchesTerminal() && e.roundResolved(graph, graph.Rounds) && e.stopConditionMet(graph)
}
