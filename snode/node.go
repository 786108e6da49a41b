// Package snode holds the storage-host snapshot type and the scoring and
// selection policies used to place fragments.
//
// Node snapshots are read-only inputs supplied per call by a membership
// collaborator; nothing in this package (or this module) mutates them or
// holds them beyond the call.
package snode

import (
	"context"
	"time"
)

// Node is a point-in-time snapshot of one candidate storage host.
type Node struct {
	ID      string
	Address string

	// Reputation is externally maintained, in [0,100].
	Reputation float64

	// Capacity is the advertised free storage in bytes.
	Capacity uint64

	LastSeen time.Time

	// Region is an optional geographic tag. Empty means unknown; nodes
	// without a region are always eligible for diversity-constrained
	// selection.
	Region string

	// LatencyMS is the measured round-trip latency in milliseconds.
	LatencyMS float64
}

// MembershipProvider supplies the live candidate list. Discovery and routing
// are an external collaborator's concern; this module only consumes
// snapshots.
type MembershipProvider interface {
	Candidates(ctx context.Context) ([]Node, error)
}

// StaticMembership is a MembershipProvider over a fixed node list.
type StaticMembership []Node

// Candidates satisfies [MembershipProvider].
func (s StaticMembership) Candidates(context.Context) ([]Node, error) {
	return []Node(s), nil
}
