package snode

import (
	"cmp"
	"slices"
	"time"
)

// Selector picks target node sets for a shard's fragments, preferring
// high-scoring nodes and spreading picks across geographic regions.
type Selector struct {
	Scorer Scorer

	// Now supplies the clock reading used for freshness scoring.
	// Nil means time.Now.
	Now func() time.Time
}

// NewSelector returns a Selector over the default scoring policy.
func NewSelector() Selector {
	return Selector{Scorer: DefaultScorer()}
}

// Select returns min(count, len(candidates)) nodes, highest score first.
//
// The first pass takes at most one node per region; nodes without a region
// tag are always eligible. If the diversity constraint leaves open slots,
// a second pass fills them from the remaining candidates in score order.
// A node ID is selected at most once even if it appears multiple times in
// the candidate list.
func (s Selector) Select(candidates []Node, count int) []Node {
	if count <= 0 || len(candidates) == 0 {
		return nil
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	ranked := make([]Node, len(candidates))
	copy(ranked, candidates)
	slices.SortStableFunc(ranked, func(a, b Node) int {
		if c := cmp.Compare(s.Scorer.Score(b, now), s.Scorer.Score(a, now)); c != 0 {
			return c
		}
		// Tie-break on ID so selection is deterministic.
		return cmp.Compare(a.ID, b.ID)
	})

	if count > len(ranked) {
		count = len(ranked)
	}

	selected := make([]Node, 0, count)
	taken := make(map[string]bool, count)
	regions := make(map[string]bool)

	for _, n := range ranked {
		if len(selected) == count {
			return selected
		}
		if taken[n.ID] || (n.Region != "" && regions[n.Region]) {
			continue
		}
		selected = append(selected, n)
		taken[n.ID] = true
		if n.Region != "" {
			regions[n.Region] = true
		}
	}

	// Diversity left open slots; fill them in score order.
	for _, n := range ranked {
		if len(selected) == count {
			break
		}
		if taken[n.ID] {
			continue
		}
		selected = append(selected, n)
		taken[n.ID] = true
	}

	return selected
}
