package brackets

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/Dosada05/competition-engine/models"
)

type DoubleEliminationEngine struct{}

func NewDoubleEliminationEngine() FormatEngine {
	return &DoubleEliminationEngine{}
}

func (e *DoubleEliminationEngine) Name() string { return "DoubleElimination" }

// Generate lays out three regions in one flat arena: the winners bracket
// (identical to single elimination), the losers bracket with its alternating
// minor/major rounds, and the grand final. Cross-feed between regions is all
// index-based, so the winners/losers interleaving never creates reference
// cycles.
func (e *DoubleEliminationEngine) Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error) {
	if len(params.Entrants) < 2 {
		return nil, fmt.Errorf("%w: double elimination needs at least 2, got %d", ErrNotEnoughParticipants, len(params.Entrants))
	}

	seeded := SeedEntrants(params.Entrants, params.Tournament.Seeding, params.Rand)
	refs := make([]string, len(seeded))
	for i, ent := range seeded {
		refs[i] = ent.Ref
	}

	n := len(refs)
	size := nextPowerOfTwo(n)
	wbRounds := bits.TrailingZeros(uint(size))

	graph := models.NewCompetitionGraph(params.Tournament.ID, models.FormatDoubleElimination)
	graph.SeedOrder = append([]string(nil), refs...)

	// Winners bracket rows.
	wb := make([][]int, wbRounds)
	for r := 1; r <= wbRounds; r++ {
		count := size >> uint(r)
		wb[r-1] = make([]int, count)
		for i := 0; i < count; i++ {
			wb[r-1][i] = graph.AppendNode(&models.Node{
				Side:         models.SideWinners,
				Round:        r,
				OrderInRound: i + 1,
				Feeder1:      models.NoNode,
				Feeder2:      models.NoNode,
				AdvanceTo:    models.NoNode,
				LoserTo:      models.NoNode,
				Status:       models.NodeEmpty,
			})
		}
	}

	// Losers bracket rows: for k in 1..wbRounds-1 a minor round (losers
	// pair among themselves) then a major round (minor winners meet the
	// losers dropping from winners round k+1).
	lb := make([][]int, 0, 2*(wbRounds-1))
	for k := 1; k < wbRounds; k++ {
		count := size >> uint(k+1)
		for _, half := range []int{0, 1} {
			roundNum := 2*k - 1 + half
			row := make([]int, count)
			for i := 0; i < count; i++ {
				row[i] = graph.AppendNode(&models.Node{
					Side:         models.SideLosers,
					Round:        roundNum,
					OrderInRound: i + 1,
					Feeder1:      models.NoNode,
					Feeder2:      models.NoNode,
					AdvanceTo:    models.NoNode,
					LoserTo:      models.NoNode,
					Status:       models.NodeEmpty,
				})
			}
			lb = append(lb, row)
		}
	}

	grandFinal := graph.AppendNode(&models.Node{
		Side:         models.SideFinals,
		Round:        1,
		OrderInRound: 1,
		Feeder1:      wb[wbRounds-1][0],
		Feeder2:      models.NoNode,
		AdvanceTo:    models.NoNode,
		LoserTo:      models.NoNode,
		Status:       models.NodeEmpty,
	})

	// Winner advancement inside the winners bracket, final into the grand
	// final's first slot.
	for r := 1; r < wbRounds; r++ {
		for i, idx := range wb[r-1] {
			link(graph, idx, wb[r][i/2], i%2+1, false)
		}
	}
	link(graph, wb[wbRounds-1][0], grandFinal, 1, false)

	// Loser drops. Winners round 1 pairs its losers into the first minor
	// round; every later winners round r drops into major round r-1.
	if wbRounds > 1 {
		for i, idx := range wb[0] {
			link(graph, idx, lb[0][i/2], i%2+1, true)
		}
		for r := 2; r <= wbRounds; r++ {
			majorRow := lb[2*(r-1)-1]
			for i, idx := range wb[r-1] {
				link(graph, idx, majorRow[i], 2, true)
			}
		}
		// Progression through the losers bracket: minor winners into major
		// slot 1, major winners pair into the next minor, last major into
		// the grand final's second slot.
		for li := 0; li < len(lb); li++ {
			row := lb[li]
			if li == len(lb)-1 {
				link(graph, row[0], grandFinal, 2, false)
				continue
			}
			for i, idx := range row {
				if li%2 == 0 { // minor round
					link(graph, idx, lb[li+1][i], 1, false)
				} else { // major round
					link(graph, idx, lb[li+1][i/2], i%2+1, false)
				}
			}
		}
	} else {
		// Two-participant field: the grand final meets the loser of the
		// only winners match directly.
		link(graph, wb[0][0], grandFinal, 2, true)
	}

	// Seed winners round 1 and resolve byes, then collapse the structural
	// holes the byes leave in the losers bracket.
	pairs := seedPairs(size)
	for i, pair := range pairs {
		node := graph.Node(wb[0][i])
		if pair[0] < n {
			node.FillSlot(1, refs[pair[0]])
		}
		if pair[1] < n {
			node.FillSlot(2, refs[pair[1]])
		}
		if node.Slot1 == nil && node.Slot2 == nil {
			return nil, fmt.Errorf("%w: round 1 pairing produced an empty node", ErrGraphInvariant)
		}
		if node.Slot1 == nil || node.Slot2 == nil {
			resolveBye(graph, node)
		}
	}
	normalizeByes(graph)

	graph.Rounds = wbRounds
	materializeReady(graph)
	return graph, nil
}

// link wires winner (or loser) advancement from node src into slot of dst
// and records the feeder edge on dst.
func link(graph *models.CompetitionGraph, src, dst, slot int, loserFeed bool) {
	s := graph.Node(src)
	if loserFeed {
		s.LoserTo = dst
		s.LoserSlot = slot
	} else {
		s.AdvanceTo = dst
		s.AdvanceSlot = slot
	}
	d := graph.Node(dst)
	if slot == 1 {
		d.Feeder1 = src
	} else {
		d.Feeder2 = src
	}
}

// normalizeByes marks losers-bracket nodes that can never receive one (or
// both) of their participants because a bye match produces no loser. A node
// with exactly one live side becomes a pass-through bye; a node with none
// becomes dead. Runs to a fixed point because each pass only shrinks the set
// of undecided nodes.
func normalizeByes(graph *models.CompetitionGraph) {
	for changed := true; changed; {
		changed = false
		for _, node := range graph.Nodes {
			if node.IsBye || node.Status == models.NodePopulated {
				continue
			}
			alive1 := node.Slot1 != nil || feederAlive(graph, node, 1)
			alive2 := node.Slot2 != nil || feederAlive(graph, node, 2)
			switch {
			case alive1 && alive2:
			case !alive1 && !alive2:
				// Dead: no participant can ever arrive here.
				node.IsBye = true
				node.Status = models.NodePopulated
				changed = true
			default:
				if node.Slot1 != nil || node.Slot2 != nil {
					resolveBye(graph, node)
				} else {
					// Participant still in flight; mark as pass-through so
					// Advance forwards whoever lands here.
					node.IsBye = true
				}
				changed = true
			}
		}
	}
}

// feederAlive reports whether the feeder behind the given slot can still
// deliver a participant. A bye node delivers its winner but never a loser;
// a dead node delivers nothing.
func feederAlive(graph *models.CompetitionGraph, node *models.Node, slot int) bool {
	feederIdx := node.Feeder1
	if slot == 2 {
		feederIdx = node.Feeder2
	}
	if feederIdx == models.NoNode {
		return false
	}
	feeder := graph.Node(feederIdx)
	// A pass-through bye still has status empty: its participant is in
	// flight. Only a populated bye with no slot is truly dead.
	dead := feeder.IsBye && feeder.Slot1 == nil && feeder.Status == models.NodePopulated

	if feeder.AdvanceTo == node.Index && feeder.AdvanceSlot == slot {
		return !dead
	}
	// Loser feed: only a real (non-bye) match produces a loser.
	return !feeder.IsBye
}

func (e *DoubleEliminationEngine) Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error) {
	node := graph.Node(completed.NodeIndex)
	if node == nil {
		return nil, fmt.Errorf("%w: match %s references node %d outside the arena", ErrGraphInvariant, completed.ID, completed.NodeIndex)
	}
	if !completed.State.Terminal() {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotTerminal, completed.ID, completed.State)
	}
	if completed.WinnerID == nil {
		// Voided match: both of its feeds fall silent and the nodes
		// downstream resolve as walkover byes.
		return voidNodeFeeds(graph, node), nil
	}

	if node.Side == models.SideFinals && !node.IsBracketReset {
		return e.checkBracketReset(graph, node, completed)
	}

	created := make([]*models.Match, 0, 2)
	if node.AdvanceTo != models.NoNode {
		created = append(created, routeToNode(graph, node.AdvanceTo, node.AdvanceSlot, *completed.WinnerID)...)
	}
	if node.LoserTo != models.NoNode && completed.LoserID != nil {
		created = append(created, routeToNode(graph, node.LoserTo, node.LoserSlot, *completed.LoserID)...)
	}
	return created, nil
}

// routeToNode drops a participant into a node slot, forwarding through
// pass-through byes, and creates the node's match once both slots are
// filled. The claim keeps the create idempotent when both feeders finish
// close together or an advancement is retried.
func routeToNode(graph *models.CompetitionGraph, nodeIdx, slot int, ref string) []*models.Match {
	node := graph.Node(nodeIdx)
	node.FillSlot(slot, ref)
	if node.IsBye {
		// A bye keeps its lone occupant in slot 1.
		if node.Slot1 == nil {
			node.Slot1, node.Slot2 = node.Slot2, nil
		}
		node.Status = models.NodePopulated
		if node.AdvanceTo != models.NoNode {
			return routeToNode(graph, node.AdvanceTo, node.AdvanceSlot, ref)
		}
		return nil
	}
	if node.Ready() && node.Claim() {
		return []*models.Match{newMatchForNode(graph, node)}
	}
	return nil
}

// voidFeed records that the feed behind the given slot of a node will never
// deliver a participant. A node whose sibling slot is already occupied
// resolves as a walkover bye and the occupant is routed onward; a node still
// waiting on its other feed becomes a pass-through; a node that loses both
// feeds is dead and the void cascades to everything it fed.
func voidFeed(graph *models.CompetitionGraph, nodeIdx, deadSlot int) []*models.Match {
	node := graph.Node(nodeIdx)
	if node == nil {
		return nil
	}
	// Clearing the feeder edge makes a replayed advancement a no-op.
	if deadSlot == 2 {
		if node.Feeder2 == models.NoNode {
			return nil
		}
		node.Feeder2 = models.NoNode
	} else {
		if node.Feeder1 == models.NoNode {
			return nil
		}
		node.Feeder1 = models.NoNode
	}
	if node.Status == models.NodePopulated {
		return nil
	}
	if node.IsBye {
		// Pass-through whose remaining feed just died. Nobody will ever
		// pass through it.
		node.Status = models.NodePopulated
		if node.AdvanceTo != models.NoNode {
			return voidFeed(graph, node.AdvanceTo, node.AdvanceSlot)
		}
		return nil
	}
	surviving := node.Slot1
	if deadSlot == 1 {
		surviving = node.Slot2
	}
	node.IsBye = true
	// A walkover produces no loser, whichever way the other feed resolves.
	var created []*models.Match
	if node.LoserTo != models.NoNode {
		created = append(created, voidFeed(graph, node.LoserTo, node.LoserSlot)...)
	}
	if surviving == nil {
		// The other feed is still in flight; routeToNode forwards whoever
		// lands here, and a second voidFeed kills the node outright.
		return created
	}
	node.Slot1, node.Slot2 = surviving, nil
	node.Status = models.NodePopulated
	if node.AdvanceTo != models.NoNode {
		created = append(created, routeToNode(graph, node.AdvanceTo, node.AdvanceSlot, *surviving)...)
	}
	return created
}

// voidNodeFeeds cascades a dead node's silence to both of its outlets.
func voidNodeFeeds(graph *models.CompetitionGraph, node *models.Node) []*models.Match {
	var created []*models.Match
	if node.AdvanceTo != models.NoNode {
		created = append(created, voidFeed(graph, node.AdvanceTo, node.AdvanceSlot)...)
	}
	if node.LoserTo != models.NoNode {
		created = append(created, voidFeed(graph, node.LoserTo, node.LoserSlot)...)
	}
	return created
}

// checkBracketReset runs exactly once per grand final completion. A losers
// bracket champion winning the grand final forces one extra match between
// the same two participants; a winners bracket champion ends the
// tournament. The existing-reset scan makes retries idempotent.
func (e *DoubleEliminationEngine) checkBracketReset(graph *models.CompetitionGraph, gfNode *models.Node, completed *models.Match) ([]*models.Match, error) {
	for _, n := range graph.Nodes {
		if n.IsBracketReset {
			return nil, nil
		}
	}
	if gfNode.Slot1 == nil || gfNode.Slot2 == nil {
		return nil, fmt.Errorf("%w: grand final completed with an unfilled slot", ErrGraphInvariant)
	}
	if *completed.WinnerID == *gfNode.Slot1 {
		// Winners bracket finalist won: no reset.
		return nil, nil
	}

	reset := &models.Node{
		Side:           models.SideFinals,
		Round:          gfNode.Round + 1,
		OrderInRound:   1,
		Feeder1:        gfNode.Index,
		Feeder2:        models.NoNode,
		AdvanceTo:      models.NoNode,
		LoserTo:        models.NoNode,
		Status:         models.NodeEmpty,
		IsBracketReset: true,
	}
	graph.AppendNode(reset)
	reset.Slot1 = gfNode.Slot1
	reset.Slot2 = gfNode.Slot2
	reset.Claim()
	return []*models.Match{newMatchForNode(graph, reset)}, nil
}

func (e *DoubleEliminationEngine) IsComplete(graph *models.CompetitionGraph) bool {
	return graph.AllMatchesTerminal()
}
