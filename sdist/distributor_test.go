package sdist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/serasure/sereedsolomon"
	"github.com/scatter-engine/scatter/serasure/sexor"
	"github.com/scatter-engine/scatter/sdist"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/snode/snodetest"
	"github.com/scatter-engine/scatter/srpc/srpctest"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/switness"
)

func newAdapter(t *testing.T, k, m int) *serasure.Adapter {
	t.Helper()

	rs, err := sereedsolomon.NewCodec(k, m)
	require.NoError(t, err)
	xor, err := sexor.NewCodec(k, m)
	require.NoError(t, err)
	return serasure.NewAdapter(slogt.New(t), rs, xor)
}

func newDistributor(t *testing.T, fleet *srpctest.Fleet, cfg sdist.Config) *sdist.Distributor {
	t.Helper()

	log := slogt.New(t)
	witness := switness.NewService(log, fleet, switness.DefaultConfig())
	return sdist.New(log, newAdapter(t, cfg.DataFragments, cfg.ParityFragments), snode.NewSelector(), fleet, witness, cfg)
}

func testConfig() sdist.Config {
	return sdist.Config{DataFragments: 8, ParityFragments: 2, RPCTimeout: time.Second}
}

func TestDistributeShard_AllStoresSucceed(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	d := newDistributor(t, fleet, testConfig())

	shard := sshard.NewEncryptedShard("shard-0", make([]byte, 64<<10))
	ds, err := d.DistributeShard(context.Background(), shard, nodes)
	require.NoError(t, err)

	require.Len(t, ds.Fragments, 10)
	require.Len(t, ds.Nodes, 10)
	require.InDelta(t, 1.0, ds.RedundancyLevel, 1e-9)
	require.Equal(t, sshard.ModeReedSolomon, ds.Mode)
	require.NotEmpty(t, ds.DistributionID)
	require.Len(t, ds.Proofs, 3)
}

func TestDistributeShard_PartialStoreFailures(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	// Three induced store failures out of ten distinct targets.
	fleet.SetStoreFailing(nodes[1].ID, true)
	fleet.SetStoreFailing(nodes[4].ID, true)
	fleet.SetStoreFailing(nodes[7].ID, true)

	d := newDistributor(t, fleet, testConfig())

	shard := sshard.NewEncryptedShard("shard-1", make([]byte, 32<<10))
	ds, err := d.DistributeShard(context.Background(), shard, nodes)
	require.NoError(t, err)

	require.Len(t, ds.Nodes, 7)
	require.InDelta(t, 0.7, ds.RedundancyLevel, 1e-9)
	for _, id := range ds.Nodes {
		require.NotEqual(t, nodes[1].ID, id)
		require.NotEqual(t, nodes[4].ID, id)
		require.NotEqual(t, nodes[7].ID, id)
	}
}

func TestDistributeShard_ZeroCandidates(t *testing.T) {
	t.Parallel()

	fleet := srpctest.NewFleet()
	d := newDistributor(t, fleet, testConfig())

	shard := sshard.NewEncryptedShard("shard-2", make([]byte, 1024))
	ds, err := d.DistributeShard(context.Background(), shard, nil)
	require.NoError(t, err, "low redundancy is the caller's decision, not an error")

	require.Empty(t, ds.Nodes)
	require.Zero(t, ds.RedundancyLevel)
	require.Len(t, ds.Fragments, 10)
}

func TestDistributeShard_NodeReuseWhenFewerNodesThanFragments(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(3)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	d := newDistributor(t, fleet, testConfig())

	shard := sshard.NewEncryptedShard("shard-3", make([]byte, 8192))
	ds, err := d.DistributeShard(context.Background(), shard, nodes)
	require.NoError(t, err)

	// Nodes are reused round-robin, so all three hold fragments and the
	// accepted list has no duplicates.
	require.Len(t, ds.Nodes, 3)
	require.InDelta(t, 0.3, ds.RedundancyLevel, 1e-9)

	total := 0
	for _, n := range nodes {
		total += fleet.FragmentCount(n.ID, shard.ID)
	}
	require.Equal(t, 10, total)
}

type brokenCodec struct {
	mode sshard.CodecMode
}

func (b brokenCodec) Encode(context.Context, sshard.EncryptedShard) ([]sshard.Fragment, error) {
	return nil, errors.New("codec unavailable")
}

func (b brokenCodec) Decode(context.Context, []sshard.Fragment, int) (sshard.EncryptedShard, error) {
	return sshard.EncryptedShard{}, errors.New("codec unavailable")
}

func (b brokenCodec) Mode() sshard.CodecMode { return b.mode }

func TestDistributeShard_EncodingFailedIsHardError(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	log := slogt.New(t)
	adapter := serasure.NewAdapter(log,
		brokenCodec{mode: sshard.ModeReedSolomon},
		brokenCodec{mode: sshard.ModeXORFallback},
	)
	witness := switness.NewService(log, fleet, switness.DefaultConfig())
	d := sdist.New(log, adapter, snode.NewSelector(), fleet, witness, testConfig())

	shard := sshard.NewEncryptedShard("shard-4", []byte("payload"))
	_, err := d.DistributeShard(context.Background(), shard, nodes)
	require.ErrorIs(t, err, serasure.ErrEncodingFailed)
}

func TestDistributeFile_IndependentShards(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(12)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	d := newDistributor(t, fleet, testConfig())

	shards := []sshard.EncryptedShard{
		sshard.NewEncryptedShard("file-a/0", make([]byte, 4096)),
		sshard.NewEncryptedShard("file-a/1", make([]byte, 4096)),
		sshard.NewEncryptedShard("file-a/2", make([]byte, 4096)),
	}

	distributed, err := d.DistributeFile(context.Background(), shards, nodes)
	require.NoError(t, err)
	require.Len(t, distributed, 3)
	for i, ds := range distributed {
		require.Equal(t, shards[i].ID, ds.Shard.ID)
		require.InDelta(t, 1.0, ds.RedundancyLevel, 1e-9)
	}
}

func TestHealShard_ReplacesNodeSet(t *testing.T) {
	t.Parallel()

	nodes := snodetest.Fleet(10)
	fleet := srpctest.NewFleet()
	fleet.AddNodes(nodes)

	// Half the fleet rejects stores during the initial distribution.
	for i := 0; i < 5; i++ {
		fleet.SetStoreFailing(nodes[i].ID, true)
	}

	d := newDistributor(t, fleet, testConfig())

	shard := sshard.NewEncryptedShard("shard-heal", make([]byte, 16<<10))
	ds, err := d.DistributeShard(context.Background(), shard, nodes)
	require.NoError(t, err)
	require.InDelta(t, 0.5, ds.RedundancyLevel, 1e-9)

	// The fleet recovers; healing should restore full redundancy.
	for i := 0; i < 5; i++ {
		fleet.SetStoreFailing(nodes[i].ID, false)
	}

	require.NoError(t, d.HealShard(context.Background(), ds, nodes))
	require.Len(t, ds.Nodes, 10)
	require.InDelta(t, 1.0, ds.RedundancyLevel, 1e-9)
}
