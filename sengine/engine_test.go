package sengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/sdist"
	"github.com/scatter-engine/scatter/sengine"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/snode/snodetest"
	"github.com/scatter-engine/scatter/sretrieve"
	"github.com/scatter-engine/scatter/srpc/srpctest"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/sshard/sshardtest"
	"github.com/scatter-engine/scatter/sstore"
	"github.com/scatter-engine/scatter/switness"
)

func newEngine(t *testing.T, fleet *srpctest.Fleet, nodes []snode.Node, store *sstore.Store) *sengine.Engine {
	t.Helper()

	e, err := sengine.New(sengine.Options{
		Log:        slogt.New(t),
		Client:     fleet,
		Membership: snode.StaticMembership(nodes),
		Store:      store,
		Distribution: sdist.Config{
			DataFragments:   8,
			ParityFragments: 2,
			RPCTimeout:      time.Second,
		},
		Witness:   switness.Config{MinWitnesses: 3, RPCTimeout: time.Second},
		Retrieval: sretrieve.Config{RPCTimeout: time.Second, AvailabilityThreshold: 0.6},
	})
	require.NoError(t, err)
	return e
}

// TestEngine_ReferenceScenario is the reference deployment walk-through:
// a 10 MiB shard encoded k=8/m=2, placed on 10 distinct nodes with 2 induced
// store failures, then retrieved with those same 2 nodes unreachable. With
// m=2 parity fragments, two is the most losses a retrieval can absorb.
func TestEngine_ReferenceScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	failing := []string{nodes[2].ID, nodes[5].ID}
	for _, id := range failing {
		fleet.SetStoreFailing(id, true)
	}

	e := newEngine(t, fleet, nodes, nil)

	shard := sshard.NewEncryptedShard("big-shard", sshardtest.Payload(10<<20))
	distributed, err := e.DistributeFile(ctx, []sshard.EncryptedShard{shard})
	require.NoError(t, err)
	require.Len(t, distributed, 1)

	ds := distributed[0]
	require.InDelta(t, 0.8, ds.RedundancyLevel, 1e-9)
	require.Len(t, ds.Nodes, 8)

	// The two failed nodes stay unreachable for retrieval; the eight
	// remaining fragments are exactly k.
	for _, id := range failing {
		fleet.SetDown(id, true)
	}

	shards, err := e.RetrieveFile(ctx, distributed)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	require.Equal(t, shard.Checksum, shards[0].Checksum)
	require.Equal(t, shard.Data, shards[0].Data)
}

func TestEngine_PersistsAndReloadsDistributions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	store, err := sstore.OpenInMemory(slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := newEngine(t, fleet, nodes, store)

	shard := sshard.NewEncryptedShard("stored-shard", sshardtest.Payload(32<<10))
	_, err = e.DistributeFile(ctx, []sshard.EncryptedShard{shard})
	require.NoError(t, err)

	ds, err := e.LoadDistribution("stored-shard")
	require.NoError(t, err)
	require.Equal(t, "stored-shard", ds.Shard.ID)

	res := e.RetrieveShard(ctx, ds)
	require.True(t, res.Success, "errors: %v", res.Errors)
	require.Equal(t, shard.Checksum, res.Shard.Checksum)
}

func TestEngine_VerifyWitnessProofs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	nodes := snodetest.Fleet(12)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	e := newEngine(t, fleet, nodes, nil)

	shard := sshard.NewEncryptedShard("witnessed-shard", sshardtest.Payload(16<<10))
	distributed, err := e.DistributeFile(ctx, []sshard.EncryptedShard{shard})
	require.NoError(t, err)

	ds := distributed[0]
	require.NotEmpty(t, ds.Proofs)

	res := e.VerifyWitnessProofs(ctx, ds)
	require.True(t, res.AllValid)

	// Tamper with the recorded fragments; every proof must now fail.
	ds.Fragments[0].Data = []byte("tampered beyond recognition")
	res = e.VerifyWitnessProofs(ctx, ds)
	require.False(t, res.AllValid)
	require.Len(t, res.FailedIDs, len(ds.Proofs))
}

func TestEngine_HealRestoresRedundancy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	store, err := sstore.OpenInMemory(slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for i := 0; i < 4; i++ {
		fleet.SetStoreFailing(nodes[i].ID, true)
	}

	e := newEngine(t, fleet, nodes, store)

	shard := sshard.NewEncryptedShard("healed-shard", sshardtest.Payload(16<<10))
	distributed, err := e.DistributeFile(ctx, []sshard.EncryptedShard{shard})
	require.NoError(t, err)

	ds := distributed[0]
	require.InDelta(t, 0.6, ds.RedundancyLevel, 1e-9)

	for i := 0; i < 4; i++ {
		fleet.SetStoreFailing(nodes[i].ID, false)
	}

	require.NoError(t, e.HealShard(ctx, ds))
	require.InDelta(t, 1.0, ds.RedundancyLevel, 1e-9)

	// The healed record is what gets reloaded.
	reloaded, err := e.LoadDistribution("healed-shard")
	require.NoError(t, err)
	require.InDelta(t, 1.0, reloaded.RedundancyLevel, 1e-9)
}

func TestEngine_CheckAvailability(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	e := newEngine(t, fleet, nodes, nil)

	var shards []sshard.EncryptedShard
	for _, id := range []string{"av/0", "av/1", "av/2"} {
		shards = append(shards, sshard.NewEncryptedShard(id, sshardtest.Payload(8<<10)))
	}
	distributed, err := e.DistributeFile(ctx, shards)
	require.NoError(t, err)

	got := e.CheckAvailability(ctx, distributed)
	require.True(t, got.Retrievable)
	require.InDelta(t, 1.0, got.Availability, 1e-9)

	// With the whole fleet down, nothing is available.
	for _, n := range nodes {
		fleet.SetDown(n.ID, true)
	}
	got = e.CheckAvailability(ctx, distributed)
	require.False(t, got.Retrievable)
	require.Zero(t, got.Availability)
}

func TestEngine_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := sengine.New(sengine.Options{})
	require.Error(t, err)

	_, err = sengine.New(sengine.Options{Client: srpctest.NewFleet()})
	require.Error(t, err)
}
