package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Dosada05/competition-engine/models"
)

func newTimeSeededRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

var (
	ErrNotEnoughParticipants = errors.New("not enough participants to generate a competition graph")
	ErrUnsupportedFormat     = errors.New("unsupported tournament format")
	ErrGraphInvariant        = errors.New("competition graph invariant violated")
	ErrMatchNotTerminal      = errors.New("match is not in a terminal state")
)

type GenerateParams struct {
	Tournament *models.Tournament
	Entrants   []models.Entrant

	// Shuffle source for random seeding; nil falls back to a time-seeded
	// source inside SeedEntrants.
	Rand *rand.Rand
}

// FormatEngine is the common contract over every bracket/group format. A
// single engine instance is stateless; all mutable state lives in the graph.
type FormatEngine interface {
	// Generate builds the competition graph and its initial matches.
	Generate(ctx context.Context, params GenerateParams) (*models.CompetitionGraph, error)

	// Advance consumes one terminal match and mutates the graph: filling
	// advancement slots, creating follow-up matches, synthesizing the
	// bracket reset or the next Swiss round. It returns any matches it
	// created.
	Advance(graph *models.CompetitionGraph, completed *models.Match) ([]*models.Match, error)

	// IsComplete reports whether the graph has produced its final result.
	IsComplete(graph *models.CompetitionGraph) bool

	Name() string
}

// EngineFor returns the engine implementing the given format.
func EngineFor(format models.TournamentFormat) (FormatEngine, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationEngine(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationEngine(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinEngine(), nil
	case models.FormatSwiss:
		return NewSwissEngine(), nil
	case models.FormatGroupThenBracket:
		return NewGroupStageEngine(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// SeedEntrants orders entrants according to the seeding method: best seed
// first. Registration order is the input order; ranked sorts by external
// rating; manual honors explicit seed positions.
func SeedEntrants(entrants []models.Entrant, method models.SeedingMethod, rnd *rand.Rand) []models.Entrant {
	seeded := make([]models.Entrant, len(entrants))
	copy(seeded, entrants)

	switch method {
	case models.SeedingRandom:
		if rnd == nil {
			rnd = newTimeSeededRand()
		}
		rnd.Shuffle(len(seeded), func(i, j int) {
			seeded[i], seeded[j] = seeded[j], seeded[i]
		})
	case models.SeedingRanked:
		sort.SliceStable(seeded, func(i, j int) bool {
			return seeded[i].Rating > seeded[j].Rating
		})
	case models.SeedingManual:
		sort.SliceStable(seeded, func(i, j int) bool {
			return seeded[i].Seed < seeded[j].Seed
		})
	}
	return seeded
}

// materializeReady claims every node whose two slots are filled and creates
// its match. The claim is a compare-and-set from empty to populated, so a
// node that lost an earlier claim race is skipped, never double-booked.
func materializeReady(graph *models.CompetitionGraph) []*models.Match {
	created := make([]*models.Match, 0)
	for _, node := range graph.Nodes {
		if node.IsBye || !node.Ready() || !node.Claim() {
			continue
		}
		created = append(created, newMatchForNode(graph, node))
	}
	return created
}

func newMatchForNode(graph *models.CompetitionGraph, node *models.Node) *models.Match {
	m := models.NewMatch(graph.TournamentID, node.Index, node.Round)
	m.Participant1 = node.Slot1
	m.Participant2 = node.Slot2
	m.IsBracketReset = node.IsBracketReset
	m.HigherSeedID = higherSeed(graph, node.Slot1, node.Slot2)
	node.MatchID = &m.ID
	graph.AddMatch(m)
	return m
}

// higherSeed returns the better-seeded of the two refs per the graph's seed
// order, nil when either ref is unknown to it.
func higherSeed(graph *models.CompetitionGraph, ref1, ref2 *string) *string {
	if ref1 == nil || ref2 == nil {
		return nil
	}
	pos := func(ref string) int {
		for i, r := range graph.SeedOrder {
			if r == ref {
				return i
			}
		}
		return -1
	}
	p1, p2 := pos(*ref1), pos(*ref2)
	if p1 < 0 || p2 < 0 {
		return nil
	}
	if p1 <= p2 {
		return ref1
	}
	return ref2
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
