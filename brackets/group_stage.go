package brackets

import (
	"context"
	"fmt"
	"sort"

	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/tiebreak"
)

type GroupStageEngine struct{}

func NewGroupStageEngine() FormatEngine {
	return &GroupStageEngine{}
}

func (e *GroupStageEngine) Name() string { return "GroupThenBracket" }

// Generate snake-distributes the seeded field into groups and lays a round
// robin inside each. The knockout phase is generated later, once every group
// match is terminal and the standings have been tiebreak-resolved.
func (e *GroupStageEngine) Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error) {
	t := params.Tournament
	groupCount := t.GroupCount
	if groupCount < 1 {
		groupCount = 1
	}
	advance := t.AdvancementCount
	if advance < 1 {
		advance = 2
	}
	if len(params.Entrants) < 2*groupCount {
		return nil, fmt.Errorf("%w: %d groups need at least %d participants, got %d",
			ErrNotEnoughParticipants, groupCount, 2*groupCount, len(params.Entrants))
	}
	if groupCount*advance < 2 {
		return nil, fmt.Errorf("%w: promotion of %d per group from %d groups cannot seed a bracket",
			ErrGraphInvariant, advance, groupCount)
	}

	seeded := SeedEntrants(params.Entrants, t.Seeding, params.Rand)
	refs := make([]string, len(seeded))
	for i, ent := range seeded {
		refs[i] = ent.Ref
	}

	graph := models.NewCompetitionGraph(t.ID, models.FormatGroupThenBracket)
	graph.SeedOrder = append([]string(nil), refs...)
	graph.AdvancementCount = advance
	graph.TiebreakerHierarchy = append([]string(nil), t.TiebreakerHierarchy...)

	// Snake distribution keeps group strength even: 1..g, then g..1.
	groups := make([]models.Group, groupCount)
	for i := range groups {
		groups[i] = models.Group{ID: i + 1}
	}
	for i, ref := range refs {
		lap, pos := i/groupCount, i%groupCount
		g := pos
		if lap%2 == 1 {
			g = groupCount - 1 - pos
		}
		groups[g].Members = append(groups[g].Members, ref)
	}
	graph.Groups = groups

	maxRounds := 0
	for _, group := range groups {
		buildRoundRobin(graph, group.Members, group.ID)
		if r := roundRobinRounds(len(group.Members)); r > maxRounds {
			maxRounds = r
		}
	}
	graph.Rounds = maxRounds
	materializeReady(graph)
	return graph, nil
}

func (e *GroupStageEngine) Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error) {
	if !completed.State.Terminal() {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotTerminal, completed.ID, completed.State)
	}

	if !graph.KnockoutGenerated {
		if !e.groupPhaseResolved(graph) {
			return nil, nil
		}
		return e.generateKnockout(graph)
	}

	// Knockout phase behaves exactly like single elimination.
	node := graph.Node(completed.NodeIndex)
	if node == nil {
		return nil, fmt.Errorf("%w: match %s references node %d outside the arena", ErrGraphInvariant, completed.ID, completed.NodeIndex)
	}
	if node.Side == models.SideGroups || node.AdvanceTo == models.NoNode {
		return nil, nil
	}
	if completed.WinnerID == nil {
		return voidFeed(graph, node.AdvanceTo, node.AdvanceSlot), nil
	}
	return routeToNode(graph, node.AdvanceTo, node.AdvanceSlot, *completed.WinnerID), nil
}

func (e *GroupStageEngine) groupPhaseResolved(graph *models.CompetitionGraph) bool {
	for _, node := range graph.Nodes {
		if node.Side != models.SideGroups || node.IsBye {
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || !m.State.Terminal() {
			return false
		}
	}
	return true
}

// generateKnockout resolves each group's final order and promotes the top
// AdvancementCount entries into a fresh elimination tree appended to the
// same arena. Promotion order carries the standing rank into the bracket
// seed: all group winners first, then all runners-up, and so on.
func (e *GroupStageEngine) generateKnockout(graph *models.CompetitionGraph) ([]*models.Match, error) {
	promoted := make([]string, 0, len(graph.Groups)*graph.AdvancementCount)
	for rank := 0; rank < graph.AdvancementCount; rank++ {
		for _, group := range graph.Groups {
			order := e.resolveGroupOrder(graph, group)
			if rank < len(order) {
				promoted = append(promoted, order[rank].ParticipantID)
			}
		}
	}
	if len(promoted) < 2 {
		return nil, fmt.Errorf("%w: only %d participants promoted from groups", ErrGraphInvariant, len(promoted))
	}

	before := len(graph.Nodes)
	if err := buildEliminationTree(graph, promoted); err != nil {
		return nil, err
	}
	graph.KnockoutGenerated = true

	created := make([]*models.Match, 0)
	for _, node := range graph.Nodes[before:] {
		if node.IsBye || !node.Ready() || !node.Claim() {
			continue
		}
		created = append(created, newMatchForNode(graph, node))
	}
	return created, nil
}

// resolveGroupOrder builds the group's standings from its terminal matches
// and runs them through the tiebreak resolver with the graph's hierarchy.
func (e *GroupStageEngine) resolveGroupOrder(graph *models.CompetitionGraph, group models.Group) []*models.Standing {
	standings := GroupStandings(graph, group)
	hierarchy := graph.TiebreakerHierarchy
	if tiebreak.ValidateHierarchy(hierarchy) != nil {
		// The hierarchy was validated at configuration time; this is a
		// safety net for graphs built before that rule existed.
		hierarchy = []string{tiebreak.CriterionPoints, tiebreak.CriterionHeadToHead, tiebreak.CriterionRandom}
	}
	ctx := &tiebreak.Context{Results: GroupOutcomes(graph, group)}
	ordered := tiebreak.Resolve(standings, hierarchy, ctx)
	for i, s := range ordered {
		rank := i + 1
		s.Rank = &rank
	}
	return ordered
}

// GroupStandings computes the table for one group: 3 points per win, 1 per
// draw, plus score aggregates for the direct tiebreak criteria. Exposed for
// the standings service, which reports the same numbers.
func GroupStandings(graph *models.CompetitionGraph, group models.Group) []*models.Standing {
	byRef := make(map[string]*models.Standing, len(group.Members))
	for _, ref := range group.Members {
		byRef[ref] = models.NewStanding(graph.TournamentID, group.ID, ref)
	}

	for _, node := range graph.Nodes {
		if node.GroupID != group.ID || node.Side != models.SideGroups {
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || m.Score == nil || (m.State != models.MatchCompleted && m.State != models.MatchForfeit) {
			continue
		}
		s1, s2 := byRef[deref(m.Participant1)], byRef[deref(m.Participant2)]
		if s1 == nil || s2 == nil {
			continue
		}
		applyResult(s1, m.Score.P1, m.Score.P2)
		applyResult(s2, m.Score.P2, m.Score.P1)
	}

	out := make([]*models.Standing, 0, len(group.Members))
	for _, ref := range group.Members {
		out = append(out, byRef[ref])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Criterion(tiebreak.CriterionPoints) > out[j].Criterion(tiebreak.CriterionPoints)
	})
	return out
}

func applyResult(s *models.Standing, scored, conceded int) {
	s.Played++
	switch {
	case scored > conceded:
		s.Wins++
		s.Criteria[tiebreak.CriterionPoints] += 3
	case scored == conceded:
		s.Draws++
		s.Criteria[tiebreak.CriterionPoints]++
	default:
		s.Losses++
	}
	s.Criteria[tiebreak.CriterionWins] = float64(s.Wins)
	s.Criteria[tiebreak.CriterionScoreFor] += float64(scored)
	s.Criteria[tiebreak.CriterionScoreDiff] += float64(scored - conceded)
}

// GroupOutcomes lists the decided results inside one group for head-to-head
// resolution.
func GroupOutcomes(graph *models.CompetitionGraph, group models.Group) []tiebreak.Outcome {
	outcomes := make([]tiebreak.Outcome, 0)
	for _, node := range graph.Nodes {
		if node.GroupID != group.ID || node.Side != models.SideGroups {
			continue
		}
		m := graph.MatchAtNode(node.Index)
		if m == nil || m.Score == nil || !m.State.Terminal() {
			continue
		}
		outcomes = append(outcomes, tiebreak.Outcome{
			P1:    deref(m.Participant1),
			P2:    deref(m.Participant2),
			Score: *m.Score,
		})
	}
	return outcomes
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (e *GroupStageEngine) IsComplete(graph *models.CompetitionGraph) bool {
	return graph.KnockoutGenerated && graph.AllMatchesTerminal()
}
