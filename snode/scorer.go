package snode

import "time"

// Scoring weights. They sum to 1, so a node that is perfect on every axis
// scores exactly 1.
const (
	weightReputation = 0.4
	weightCapacity   = 0.3
	weightLatency    = 0.2
	weightFreshness  = 0.1
)

// Scorer ranks nodes by a weighted composite of reputation, free capacity,
// latency, and freshness. Score is a pure function of the node snapshot and
// the supplied clock reading.
type Scorer struct {
	// ReferenceCapacity is the capacity at which the capacity axis
	// saturates at 1.
	ReferenceCapacity uint64

	// FreshnessWindow is how long after LastSeen the freshness axis decays
	// linearly to 0.
	FreshnessWindow time.Duration
}

// DefaultScorer returns a Scorer with the reference policy values:
// capacity saturating at 1 GiB and freshness decaying over 24 hours.
func DefaultScorer() Scorer {
	return Scorer{
		ReferenceCapacity: 1 << 30,
		FreshnessWindow:   24 * time.Hour,
	}
}

// Score returns the node's composite score in [0,1].
func (s Scorer) Score(n Node, now time.Time) float64 {
	reputation := n.Reputation / 100
	if reputation > 1 {
		reputation = 1
	}
	if reputation < 0 {
		reputation = 0
	}

	capacity := float64(n.Capacity) / float64(s.ReferenceCapacity)
	if capacity > 1 {
		capacity = 1
	}

	latency := 1 - n.LatencyMS/1000
	if latency < 0 {
		latency = 0
	}
	if latency > 1 {
		latency = 1
	}

	freshness := 1 - float64(now.Sub(n.LastSeen))/float64(s.FreshnessWindow)
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 1 {
		freshness = 1
	}

	return weightReputation*reputation +
		weightCapacity*capacity +
		weightLatency*latency +
		weightFreshness*freshness
}
