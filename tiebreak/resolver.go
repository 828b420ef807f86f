package tiebreak

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Dosada05/competition-engine/models"
)

// Criterion tags accepted in a tiebreaker hierarchy. Direct tags read the
// value straight off the standing's criteria map; head_to_head and random
// are computed here.
const (
	CriterionPoints     = "points"
	CriterionWins       = "wins"
	CriterionScoreDiff  = "score_diff"
	CriterionScoreFor   = "score_for"
	CriterionBuchholz   = "buchholz"
	CriterionHeadToHead = "head_to_head"
	CriterionRandom     = "random"
)

var (
	ErrEmptyHierarchy      = errors.New("tiebreaker hierarchy must not be empty")
	ErrUnknownCriterion    = errors.New("unknown tiebreaker criterion")
	ErrMissingRandomFinale = errors.New("tiebreaker hierarchy must terminate with the random criterion")
)

var knownCriteria = map[string]bool{
	CriterionPoints:     true,
	CriterionWins:       true,
	CriterionScoreDiff:  true,
	CriterionScoreFor:   true,
	CriterionBuchholz:   true,
	CriterionHeadToHead: true,
	CriterionRandom:     true,
}

// ValidateHierarchy rejects misconfigured hierarchies at configuration time.
// A hierarchy that could exhaust every criterion without producing a total
// order is a configuration bug, so the random terminator is mandatory.
func ValidateHierarchy(hierarchy []string) error {
	if len(hierarchy) == 0 {
		return ErrEmptyHierarchy
	}
	for _, tag := range hierarchy {
		if !knownCriteria[tag] {
			return fmt.Errorf("%w: %q", ErrUnknownCriterion, tag)
		}
	}
	if hierarchy[len(hierarchy)-1] != CriterionRandom {
		return fmt.Errorf("%w: got %q", ErrMissingRandomFinale, hierarchy[len(hierarchy)-1])
	}
	return nil
}

// Outcome is one decided match between two of the entities being ranked,
// used to build head-to-head mini tables.
type Outcome struct {
	P1, P2 string
	Score  models.Score
}

// Context carries the inputs a computed criterion may need. Rand is only
// consulted by the random terminator; a nil Rand gets a time-seeded source.
type Context struct {
	Results []Outcome
	Rand    *rand.Rand
}

func (c *Context) rng() *rand.Rand {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c.Rand
}

// Resolve produces a total order over the tied standings, best first. It is
// recursive: entities equal under hierarchy[0] are re-resolved against the
// remaining hierarchy. The output is always a permutation of the input.
// Hierarchies are assumed to have passed ValidateHierarchy, so resolution
// itself never fails.
func Resolve(tied []*models.Standing, hierarchy []string, ctx *Context) []*models.Standing {
	if len(tied) <= 1 || len(hierarchy) == 0 {
		return tied
	}
	if ctx == nil {
		ctx = &Context{}
	}

	scores := criterionScores(tied, hierarchy[0], ctx)

	// Stable-sort descending by score, then split into equal-score groups.
	ordered := make([]*models.Standing, len(tied))
	copy(ordered, tied)
	sort.SliceStable(ordered, func(i, j int) bool {
		return scores[ordered[i].ParticipantID] > scores[ordered[j].ParticipantID]
	})

	out := make([]*models.Standing, 0, len(ordered))
	for start := 0; start < len(ordered); {
		end := start + 1
		for end < len(ordered) && scores[ordered[end].ParticipantID] == scores[ordered[start].ParticipantID] {
			end++
		}
		group := ordered[start:end]
		if len(group) > 1 {
			group = Resolve(group, hierarchy[1:], ctx)
		}
		out = append(out, group...)
		start = end
	}
	return out
}

func criterionScores(tied []*models.Standing, tag string, ctx *Context) map[string]float64 {
	scores := make(map[string]float64, len(tied))
	switch tag {
	case CriterionHeadToHead:
		return headToHeadScores(tied, ctx.Results)
	case CriterionRandom:
		// Distinct values guarantee the recursion terminates here.
		perm := ctx.rng().Perm(len(tied))
		for i, s := range tied {
			scores[s.ParticipantID] = float64(len(tied) - perm[i])
		}
	default:
		for _, s := range tied {
			scores[s.ParticipantID] = s.Criterion(tag)
		}
	}
	return scores
}

// headToHeadScores builds a mini round-robin table restricted to matches
// where both participants belong to the tied subset. Win counts 1, draw 0.5.
func headToHeadScores(tied []*models.Standing, results []Outcome) map[string]float64 {
	inSubset := make(map[string]bool, len(tied))
	scores := make(map[string]float64, len(tied))
	for _, s := range tied {
		inSubset[s.ParticipantID] = true
		scores[s.ParticipantID] = 0
	}
	for _, r := range results {
		if !inSubset[r.P1] || !inSubset[r.P2] {
			continue
		}
		switch {
		case r.Score.P1 > r.Score.P2:
			scores[r.P1]++
		case r.Score.P2 > r.Score.P1:
			scores[r.P2]++
		default:
			scores[r.P1] += 0.5
			scores[r.P2] += 0.5
		}
	}
	return scores
}
