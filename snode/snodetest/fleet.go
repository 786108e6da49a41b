// Package snodetest generates fake node fleets for tests.
package snodetest

import (
	"fmt"
	"math/rand"
	"time"

	petname "github.com/dustinkirkland/golang-petname"

	"github.com/scatter-engine/scatter/snode"
)

// Regions is the region pool fleets draw from.
var Regions = []string{"eu-west", "eu-north", "us-east", "us-west", "ap-south", "sa-east"}

// Fleet returns n nodes spread across [Regions], all seen recently, with
// varied reputation, capacity, and latency. Numeric attributes are seeded
// from n, and each ID starts with "node-<i>-", so tests can rely on the
// index-to-node mapping even though the petname suffix varies.
func Fleet(n int) []snode.Node {
	rng := rand.New(rand.NewSource(int64(n)))
	now := time.Now()

	nodes := make([]snode.Node, n)
	for i := range nodes {
		name := petname.Generate(2, "-")
		nodes[i] = snode.Node{
			ID:         fmt.Sprintf("node-%d-%s", i, name),
			Address:    fmt.Sprintf("10.0.%d.%d:9520", i/250, i%250),
			Reputation: 50 + rng.Float64()*50,
			Capacity:   uint64(1<<28) + uint64(rng.Int63n(1<<31)),
			LastSeen:   now.Add(-time.Duration(rng.Int63n(int64(time.Hour)))),
			Region:     Regions[i%len(Regions)],
			LatencyMS:  10 + rng.Float64()*200,
		}
	}
	return nodes
}
