package models

import "github.com/google/uuid"

// NoNode marks an unused feeder or advancement index. Nodes reference each
// other by index into the graph's flat arena, never by pointer, so the
// winners/losers cross-feed of double elimination cannot form reference
// cycles.
const NoNode = -1

type NodeStatus string

const (
	NodeEmpty     NodeStatus = "empty"
	NodePopulated NodeStatus = "populated"
)

type BracketSide string

const (
	SideWinners BracketSide = "winners"
	SideLosers  BracketSide = "losers"
	SideFinals  BracketSide = "finals"
	SideGroups  BracketSide = "groups"
)

// Node is one slot in the competition graph: a match position plus where its
// winner (and, in double elimination, its loser) advances to.
type Node struct {
	Index        int         `json:"index"`
	Side         BracketSide `json:"side"`
	Round        int         `json:"round"`
	OrderInRound int         `json:"order_in_round"`
	GroupID      int         `json:"group_id,omitempty"`

	// Feeder and advancement links, as arena indices.
	Feeder1     int `json:"feeder_1"`
	Feeder2     int `json:"feeder_2"`
	AdvanceTo   int `json:"advance_to"`
	AdvanceSlot int `json:"advance_slot"`
	LoserTo     int `json:"loser_to"`
	LoserSlot   int `json:"loser_slot"`

	// Participant refs once known. A bye node carries Slot1 only.
	Slot1 *string `json:"slot_1,omitempty"`
	Slot2 *string `json:"slot_2,omitempty"`

	Status  NodeStatus `json:"status"`
	MatchID *uuid.UUID `json:"match_id,omitempty"`
	IsBye   bool       `json:"is_bye,omitempty"`

	// Second grand final of double elimination.
	IsBracketReset bool `json:"is_bracket_reset,omitempty"`
}

// Ready reports whether both participant slots are filled.
func (n *Node) Ready() bool {
	return n.Slot1 != nil && n.Slot2 != nil
}

// Claim flips the node from empty to populated. It returns false if the node
// was already claimed, which the caller must treat as a lost race and not an
// error in the node's state.
func (n *Node) Claim() bool {
	if n.Status != NodeEmpty {
		return false
	}
	n.Status = NodePopulated
	return true
}

// FillSlot writes a participant ref into the given slot (1 or 2).
func (n *Node) FillSlot(slot int, ref string) {
	if slot == 1 {
		n.Slot1 = &ref
	} else {
		n.Slot2 = &ref
	}
}

// Group is one pool of a group-stage format.
type Group struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
}

// CompetitionGraph owns the node arena and every match of a tournament. Its
// shape is immutable after generation; the single permitted mutation is
// AppendNode, used for the double-elimination bracket reset.
type CompetitionGraph struct {
	TournamentID int              `json:"tournament_id"`
	Format       TournamentFormat `json:"format"`
	Nodes        []*Node          `json:"nodes"`
	Groups       []Group          `json:"groups,omitempty"`
	Rounds       int              `json:"rounds"`

	// SeedOrder lists participant refs best seed first; it backs the
	// higher-seed metadata on matches. Group formats overwrite it with the
	// promotion order when the knockout phase is generated.
	SeedOrder []string `json:"seed_order,omitempty"`

	// Format knobs copied from the tournament at generation time so the
	// engine can act on the graph alone.
	RoundCap            int      `json:"round_cap,omitempty"`
	AdvancementCount    int      `json:"advancement_count,omitempty"`
	TiebreakerHierarchy []string `json:"tiebreaker_hierarchy,omitempty"`

	// True once a group-stage graph has generated its knockout phase.
	KnockoutGenerated bool `json:"knockout_generated,omitempty"`

	MatchSet map[uuid.UUID]*Match `json:"-"`
}

func NewCompetitionGraph(tournamentID int, format TournamentFormat) *CompetitionGraph {
	return &CompetitionGraph{
		TournamentID: tournamentID,
		Format:       format,
		MatchSet:     make(map[uuid.UUID]*Match),
	}
}

func (g *CompetitionGraph) Node(index int) *Node {
	if index < 0 || index >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[index]
}

// AppendNode adds a node to the arena and returns its index.
func (g *CompetitionGraph) AppendNode(n *Node) int {
	n.Index = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.Index
}

func (g *CompetitionGraph) AddMatch(m *Match) {
	g.MatchSet[m.ID] = m
}

func (g *CompetitionGraph) Match(id uuid.UUID) *Match {
	return g.MatchSet[id]
}

// MatchAtNode returns the match occupying the node, if any.
func (g *CompetitionGraph) MatchAtNode(index int) *Match {
	n := g.Node(index)
	if n == nil || n.MatchID == nil {
		return nil
	}
	return g.MatchSet[*n.MatchID]
}

// AllMatchesTerminal reports whether every match in the graph has reached a
// terminal state. An empty graph counts as not terminal.
func (g *CompetitionGraph) AllMatchesTerminal() bool {
	if len(g.MatchSet) == 0 {
		return false
	}
	for _, m := range g.MatchSet {
		if !m.State.Terminal() {
			return false
		}
	}
	return true
}

// Matches returns the graph's matches ordered by round, then order in round.
// Useful for rendering and deterministic iteration in tests.
func (g *CompetitionGraph) Matches() []*Match {
	out := make([]*Match, 0, len(g.MatchSet))
	for _, n := range g.Nodes {
		if n.MatchID != nil {
			if m, ok := g.MatchSet[*n.MatchID]; ok {
				out = append(out, m)
			}
		}
	}
	return out
}
